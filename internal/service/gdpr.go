package service

import (
	"context"
	"strconv"

	"github.com/beevik/etree"
)

// ExportMemberData renders a member's profile and full contribution
// history as an XML document for GDPR data-portability requests.
func (s *Service) ExportMemberData(ctx context.Context, memberID int64) ([]byte, error) {
	member, err := s.store.FindMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	contributions, err := s.store.ContributionsByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("member_export")
	root.CreateAttr("member_id", strconv.FormatInt(member.ID, 10))

	profile := root.CreateElement("profile")
	profile.CreateElement("mobile").SetText(member.Mobile)
	profile.CreateElement("email").SetText(member.Email)
	profile.CreateElement("contribution_mode").SetText(member.ContributionMode)
	profile.CreateElement("registered_at").SetText(member.RegisteredAt.Format("2006-01-02"))

	balances := root.CreateElement("balances")
	balances.CreateElement("wallet").SetText(member.WalletBalance.String())
	balances.CreateElement("ica").SetText(member.ICABalance.String())
	balances.CreateElement("piggy").SetText(member.PiggyBalance.String())

	history := root.CreateElement("contributions")
	for _, c := range contributions {
		e := history.CreateElement("contribution")
		e.CreateAttr("id", strconv.FormatInt(c.ID, 10))
		e.CreateElement("track").SetText(string(c.Track))
		e.CreateElement("amount").SetText(c.Amount.String())
		e.CreateElement("status").SetText(c.Status)
		if !c.InterestEarned.IsZero() {
			e.CreateElement("interest_earned").SetText(c.InterestEarned.String())
		}
		e.CreateElement("date").SetText(c.Date.Format("2006-01-02"))
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}

	s.audit(ctx, memberID, "gdpr.exported", "format=xml")
	s.log.Infof("GDPR export produced for member %d (%d contributions)", memberID, len(contributions))
	return out, nil
}

// EraseMember anonymizes a member's identity fields. Financial rows are
// retained; balances and the contribution record survive erasure.
func (s *Service) EraseMember(ctx context.Context, memberID int64) error {
	if err := s.store.AnonymizeMember(ctx, memberID); err != nil {
		return err
	}
	s.audit(ctx, memberID, "gdpr.erased", "identity fields anonymized")
	s.log.Infof("Member %d anonymized", memberID)
	return nil
}
