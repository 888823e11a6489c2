package api

import (
	"net/http"
	"strings"
)

// Permission names an action the upstream identity provider may grant.
type Permission string

const (
	PermAddAccount        Permission = "bankaccounts.add"
	PermChangeAccount     Permission = "bankaccounts.change"
	PermDeleteAccount     Permission = "bankaccounts.delete"
	PermAdministerOwners  Permission = "bankaccounts.administer_owners"
	PermAddTransaction    Permission = "banktransactions.add"
	PermChangeTransaction Permission = "banktransactions.change"
	PermDeleteTransaction Permission = "banktransactions.delete"
	PermAddScheduler      Permission = "banktransactionschedulers.add"
	PermChangeScheduler   Permission = "banktransactionschedulers.change"
	PermDeleteScheduler   Permission = "banktransactionschedulers.delete"
	PermAddTag            Permission = "banktransactiontags.add"
	PermChangeTag         Permission = "banktransactiontags.change"
	PermDeleteTag         Permission = "banktransactiontags.delete"
	PermAnalytics         Permission = "banktransactionanalytics.analytics"
	PermDeleteUser        Permission = "users.delete"
)

// Permissions is the result of the upstream permission check.
type Permissions interface {
	Has(r *http.Request, p Permission) bool
}

const PermissionsHeader = "X-User-Permissions"

// HeaderPermissions trusts the comma separated permission list forwarded by
// the proxy. "*" grants everything.
type HeaderPermissions struct{}

func (HeaderPermissions) Has(r *http.Request, p Permission) bool {
	for _, v := range strings.Split(r.Header.Get(PermissionsHeader), ",") {
		v = strings.TrimSpace(v)
		if v == "*" || v == string(p) {
			return true
		}
	}
	return false
}

// AllowAll grants every permission, for deployments without a proxy
// permission check.
type AllowAll struct{}

func (AllowAll) Has(*http.Request, Permission) bool { return true }
