package brief

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/village/internal/model"
)

// MemberContact is the most recent logged contact with a village member.
type MemberContact struct {
	MemberID    int64      `json:"member_id"`
	Name        string     `json:"name"`
	LastContact *time.Time `json:"last_contact"`
	Channel     string     `json:"channel,omitempty"`
}

type VillageOverview struct {
	Members              []model.VillageMember `json:"members"`
	MembersByCategory    map[string]int        `json:"members_by_category"`
	OpenHelpRequests     int                   `json:"open_help_requests"`
	AcceptedHelpRequests int                   `json:"accepted_help_requests"`
	DelegationsByStatus  map[string]int        `json:"delegations_by_status"`
	LastContacts         []MemberContact       `json:"last_contacts"`
	NeedsCheckIn         []MemberContact       `json:"needs_checkin"`
	CheckinReminderDays  int                   `json:"checkin_reminder_days"`
}

// VillageOverview summarizes the support network. A member needs a check-in
// when nothing has been logged with them in the household's
// checkin_reminder_days, including members never contacted.
func (svc *Service) VillageOverview(ctx context.Context, householdID int64) (*VillageOverview, error) {
	var (
		members     []model.VillageMember
		requests    []model.HelpRequest
		logs        []model.CommunicationLog
		delegations []model.DelegationTask
		checkinDays int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		members, err = svc.s.VillageMembers.List(gctx, householdID)
		return err
	})
	g.Go(func() (err error) {
		requests, err = svc.s.HelpRequests.List(gctx, householdID, "")
		return err
	})
	g.Go(func() (err error) {
		logs, err = svc.s.Logs.List(gctx, householdID, 0, 0)
		return err
	})
	g.Go(func() (err error) {
		delegations, err = svc.s.Delegations.List(gctx, householdID, 0)
		return err
	})
	g.Go(func() (err error) {
		checkinDays, err = svc.s.Settings.Int(gctx, householdID, model.SettingCheckinReminderDays, defaultCheckinDays)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load village overview: %w", err)
	}
	if checkinDays <= 0 {
		checkinDays = defaultCheckinDays
	}
	if members == nil {
		members = []model.VillageMember{}
	}

	o := &VillageOverview{
		Members:             members,
		MembersByCategory:   map[string]int{},
		DelegationsByStatus: map[string]int{},
		LastContacts:        []MemberContact{},
		NeedsCheckIn:        []MemberContact{},
		CheckinReminderDays: checkinDays,
	}
	for _, c := range model.VillageCategories {
		o.MembersByCategory[c] = 0
	}
	for _, m := range members {
		o.MembersByCategory[m.Category]++
	}
	for _, r := range requests {
		switch r.Status {
		case model.HelpStatusOpen:
			o.OpenHelpRequests++
		case model.HelpStatusAccepted:
			o.AcceptedHelpRequests++
		}
	}
	for _, s := range model.DelegationStatuses {
		o.DelegationsByStatus[s] = 0
	}
	for _, d := range delegations {
		o.DelegationsByStatus[d.Status]++
	}

	// Logs arrive newest first, so the first seen per member is the latest.
	latest := map[int64]model.CommunicationLog{}
	for _, l := range logs {
		if _, ok := latest[l.VillageMemberID]; !ok {
			latest[l.VillageMemberID] = l
		}
	}

	cutoff := svc.now().AddDate(0, 0, -checkinDays)
	for _, m := range members {
		c := MemberContact{MemberID: m.ID, Name: m.Name}
		if l, ok := latest[m.ID]; ok {
			at := l.OccurredAt
			c.LastContact = &at
			c.Channel = l.Channel
		}
		o.LastContacts = append(o.LastContacts, c)
		if c.LastContact == nil || c.LastContact.Before(cutoff) {
			o.NeedsCheckIn = append(o.NeedsCheckIn, c)
		}
	}
	sort.SliceStable(o.NeedsCheckIn, func(i, j int) bool { return o.NeedsCheckIn[i].Name < o.NeedsCheckIn[j].Name })
	return o, nil
}
