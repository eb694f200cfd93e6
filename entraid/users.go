package entraid

import (
	"fmt"
	"time"

	"github.com/refractionPOINT/gjson"
)

// AssignedLicense is one license entry held by a directory account. The
// nested shape is preserved in the outgoing log record.
type AssignedLicense struct {
	SkuID         string   `json:"SkuId"`
	DisabledPlans []string `json:"DisabledPlans,omitempty"`
}

// AssignedPlan is one service plan entry held by a directory account.
type AssignedPlan struct {
	AssignedDateTime *time.Time `json:"AssignedDateTime,omitempty"`
	CapabilityStatus string     `json:"CapabilityStatus,omitempty"`
	Service          string     `json:"Service,omitempty"`
	ServicePlanID    string     `json:"ServicePlanId,omitempty"`
}

// UserRecord is the flat log-record shape of one directory account, ready
// for ingestion. Field names here are the destination table column names.
type UserRecord struct {
	UserPrincipalName string            `json:"UserPrincipalName"`
	DisplayName       string            `json:"DisplayName"`
	City              string            `json:"City"`
	Country           string            `json:"Country"`
	Department        string            `json:"Department"`
	JobTitle          string            `json:"JobTitle"`
	Mail              string            `json:"Mail"`
	OfficeLocation    string            `json:"OfficeLocation"`
	AssignedLicenses  []AssignedLicense `json:"AssignedLicenses,omitempty"`
	AssignedPlans     []AssignedPlan    `json:"AssignedPlans,omitempty"`
	CreatedDateTime   *time.Time        `json:"CreateDateTime,omitempty"`
	// LastAccess is absent when the account has never signed in.
	LastAccess *time.Time `json:"LastAccess,omitempty"`
	UserID     string     `json:"UserId"`
}

// mapUserRecord maps one raw Graph user object into a UserRecord. A record
// with no usable id or userPrincipalName is a mapping failure; malformed
// optional attributes degrade to absent values instead.
func mapUserRecord(raw []byte) (UserRecord, error) {
	j := gjson.ParseBytes(raw)

	id := j.Get("id").String()
	upn := j.Get("userPrincipalName").String()
	if id == "" || upn == "" {
		return UserRecord{}, fmt.Errorf("record is missing id or userPrincipalName")
	}

	u := UserRecord{
		UserPrincipalName: upn,
		DisplayName:       j.Get("displayName").String(),
		City:              j.Get("city").String(),
		Country:           j.Get("country").String(),
		Department:        j.Get("department").String(),
		JobTitle:          j.Get("jobTitle").String(),
		Mail:              j.Get("mail").String(),
		OfficeLocation:    j.Get("officeLocation").String(),
		CreatedDateTime:   parseGraphTime(j.Get("createdDateTime")),
		LastAccess:        parseGraphTime(j.Get("signInActivity.lastSignInDateTime")),
		UserID:            id,
	}

	for _, l := range j.Get("assignedLicenses").Array() {
		lic := AssignedLicense{SkuID: l.Get("skuId").String()}
		for _, d := range l.Get("disabledPlans").Array() {
			lic.DisabledPlans = append(lic.DisabledPlans, d.String())
		}
		u.AssignedLicenses = append(u.AssignedLicenses, lic)
	}

	for _, p := range j.Get("assignedPlans").Array() {
		u.AssignedPlans = append(u.AssignedPlans, AssignedPlan{
			AssignedDateTime: parseGraphTime(p.Get("assignedDateTime")),
			CapabilityStatus: p.Get("capabilityStatus").String(),
			Service:          p.Get("service").String(),
			ServicePlanID:    p.Get("servicePlanId").String(),
		})
	}

	return u, nil
}

// parseGraphTime parses a Graph RFC3339 timestamp. A missing, null or
// unparsable value maps to absent.
func parseGraphTime(v gjson.Result) *time.Time {
	if !v.Exists() || v.String() == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String())
	if err != nil {
		return nil
	}
	return &t
}
