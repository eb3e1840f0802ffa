package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/alertaperu/community-alarm/internal/config"
	"github.com/alertaperu/community-alarm/internal/directory"
	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/alertaperu/community-alarm/internal/storage"
	"github.com/joho/godotenv"
)

func main() {
	communityName := flag.String("community", "", "community whose group chat receives the test message")
	phone := flag.String("call", "", "phone number to place a test voice call to")
	flag.Parse()

	fmt.Println("🔍 Community Alarm - Channel Connectivity Check")
	fmt.Println("===============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("\n📂 Checking community store...")
	fmt.Println(strings.Repeat("-", 40))

	var store storage.StorageInterface
	if cfg.CommunityStore == "azure" {
		store, err = storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	} else {
		store, err = storage.NewFileStorage(cfg.CommunitiesDir)
	}
	if err != nil {
		log.Fatalf("❌ Community store unavailable: %v", err)
	}

	communities := directory.New(store)
	names, err := communities.Names(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to list communities: %v", err)
	}
	fmt.Printf("✅ %d communities found: %s\n", len(names), strings.Join(names, ", "))

	fmt.Println("\n📡 Checking channels...")
	fmt.Println(strings.Repeat("-", 40))

	telegram := notifications.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.ChannelTimeout)
	if *communityName != "" {
		community, err := communities.ResolveByName(ctx, *communityName)
		if err != nil {
			fmt.Printf("❌ Community %s: %v\n", *communityName, err)
		} else {
			check("Telegram group "+community.GroupChatTarget.Normalize(), func() error {
				return telegram.Send(ctx, community.GroupChatTarget,
					fmt.Sprintf("🔧 Channel check for <b>%s</b>, please ignore.", strings.ToUpper(community.Name)))
			})
		}
	} else {
		fmt.Println("🔸 Telegram... ⚠️  SKIPPED (pass -community to send a test message)")
	}

	switch {
	case *phone == "":
		fmt.Println("🔸 Twilio... ⚠️  SKIPPED (pass -call to place a test call)")
	case !cfg.VoiceEnabled():
		fmt.Println("🔸 Twilio... ⚠️  DISABLED (missing Twilio credentials)")
	default:
		twilio := notifications.NewTwilioClient(notifications.TwilioConfig{
			APIURL:     cfg.TwilioAPIURL,
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			Language:   cfg.VoiceLanguage,
			Voice:      cfg.VoiceName,
			Timeout:    cfg.ChannelTimeout,
		})
		check("Twilio call to "+*phone, func() error {
			return twilio.Call(ctx, *phone, "This is a test of the community alarm. No action is needed.")
		})
	}

	fmt.Println("\n✅ Channel check completed!")
}

func check(name string, fn func() error) {
	fmt.Printf("🔸 %s... ", name)
	if err := fn(); err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Println("✅ SUCCESS")
}
