// Package resolver attributes an alert submission to a community member.
package resolver

import (
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/sirupsen/logrus"
)

// UnknownReporter is the display name used when a community has no members
const UnknownReporter = "Unknown user"

// PendingIntents is the read-once source of pending reporters
type PendingIntents interface {
	ConsumeIfPresent(community string) (models.ExternalID, bool)
}

// Resolver applies the tiered attribution policy
type Resolver struct {
	intents PendingIntents
}

// New creates a resolver backed by the given intent source
func New(intents PendingIntents) *Resolver {
	return &Resolver{intents: intents}
}

// Resolve never fails: it always returns a best-effort attribution
func (r *Resolver) Resolve(submission *models.AlertSubmission, community *models.Community) models.Resolution {
	reporter, confidence := r.identify(submission, community)

	resolution := models.Resolution{
		Reporter:   reporter,
		Confidence: confidence,
		Location:   submission.Location,
		Address:    firstNonEmpty(reporter.Address, submission.Address, models.Unavailable),
	}

	if !submission.LiveLocation && reporter.DefaultLocation.Complete() {
		resolution.Location = reporter.DefaultLocation
	}

	return resolution
}

func (r *Resolver) identify(submission *models.AlertSubmission, community *models.Community) (models.Member, models.Confidence) {
	log := logrus.WithField("community", community.Name)

	if !submission.ReporterID.IsZero() {
		if member, ok := community.MemberByExternalID(submission.ReporterID); ok {
			log.Debugf("Reporter %s identified from submission", member.DisplayName)
			return member, models.ConfidenceExplicit
		}
		log.Warnf("Submitted reporter id %s does not match any member", submission.ReporterID.Normalize())
	}

	// The pending entry is gone after this call whether or not it matches
	if pending, ok := r.intents.ConsumeIfPresent(community.Name); ok {
		if member, ok := community.MemberByExternalID(pending); ok {
			log.Debugf("Reporter %s identified from pending SOS", member.DisplayName)
			return member, models.ConfidenceCorrelated
		}
		log.Warnf("Pending SOS from %s does not match any member, discarded", pending.Normalize())
	}

	if len(community.Members) == 0 {
		log.Warn("Community has no members, reporter is unknown")
		return models.Member{DisplayName: UnknownReporter}, models.ConfidenceLow
	}

	log.Warnf("Could not identify reporter, attributing alert to first member %s", community.Members[0].DisplayName)
	return community.Members[0], models.ConfidenceLow
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
