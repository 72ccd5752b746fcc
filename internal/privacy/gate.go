// Package privacy decides whether one user may send a direct message to
// another, based on blocks and the recipient's message-privacy setting.
package privacy

import (
	"context"

	"socialdm/backend/internal/models"
)

type Setting string

const (
	SettingEveryone  Setting = models.PrivacyEveryone
	SettingFollowers Setting = models.PrivacyFollowers
	SettingNone      Setting = models.PrivacyNone
)

// Human-readable deny reasons, delivered to the sender as they are.
const (
	ReasonYouBlocked    = "you blocked this user"
	ReasonBlockedYou    = "this user has blocked you"
	ReasonAcceptsNone   = "this user accepts no messages"
	ReasonFollowersOnly = "this user only accepts messages from followers"
)

// Facts is everything Decide needs, loaded for one (sender, recipient) pair.
type Facts struct {
	SenderBlockedRecipient bool
	RecipientBlockedSender bool
	SenderFollowsRecipient bool
	RecipientSetting       Setting
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Decide applies the rules in order; the first match wins.
func Decide(f Facts) Decision {
	if f.SenderBlockedRecipient {
		return Decision{Reason: ReasonYouBlocked}
	}
	if f.RecipientBlockedSender {
		return Decision{Reason: ReasonBlockedYou}
	}

	switch f.RecipientSetting {
	case SettingNone:
		return Decision{Reason: ReasonAcceptsNone}
	case SettingFollowers:
		if !f.SenderFollowsRecipient {
			return Decision{Reason: ReasonFollowersOnly}
		}
	}
	return Decision{Allowed: true}
}

// FactSource reads block, follow and privacy state. The storage layer
// implements it.
type FactSource interface {
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	MessagePrivacy(ctx context.Context, userID string) (string, error)
}

// Checker is the collaborator the gateway and REST handlers depend on.
type Checker interface {
	CanMessage(ctx context.Context, senderID, recipientID string) (Decision, error)
}

// Gate loads facts on every call. State can change between connection open
// and send, so nothing is cached.
type Gate struct {
	facts FactSource
}

func NewGate(facts FactSource) *Gate {
	return &Gate{facts: facts}
}

func (g *Gate) CanMessage(ctx context.Context, senderID, recipientID string) (Decision, error) {
	var (
		f   Facts
		err error
	)

	if f.SenderBlockedRecipient, err = g.facts.IsBlocked(ctx, senderID, recipientID); err != nil {
		return Decision{}, err
	}
	if f.SenderBlockedRecipient {
		return Decide(f), nil
	}
	if f.RecipientBlockedSender, err = g.facts.IsBlocked(ctx, recipientID, senderID); err != nil {
		return Decision{}, err
	}
	if f.RecipientBlockedSender {
		return Decide(f), nil
	}

	setting, err := g.facts.MessagePrivacy(ctx, recipientID)
	if err != nil {
		return Decision{}, err
	}
	f.RecipientSetting = normalize(setting)

	if f.RecipientSetting == SettingFollowers {
		if f.SenderFollowsRecipient, err = g.facts.IsFollowing(ctx, senderID, recipientID); err != nil {
			return Decision{}, err
		}
	}
	return Decide(f), nil
}

// normalize treats unknown or empty settings as the platform default.
func normalize(s string) Setting {
	switch Setting(s) {
	case SettingNone, SettingFollowers:
		return Setting(s)
	default:
		return SettingEveryone
	}
}
