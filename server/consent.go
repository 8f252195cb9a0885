package server

import (
	"context"
	"errors"
)

// ErrConsentDenied is returned by a ConsentProvider when the resource owner
// denies the authorization request. The authorization endpoint translates it
// into an access_denied redirect.
var ErrConsentDenied = errors.New("resource owner denied the authorization request")

// ConsentRequest describes a pending authorization request presented for
// consent.
type ConsentRequest struct {
	Subject     string
	ClientID    string
	ClientName  string
	RedirectURI string
	Scope       string
}

// ConsentProvider decides whether an authorization request is approved.
// Implementations may render a consent page, check a policy engine, or
// auto-approve for trusted single-user deployments.
type ConsentProvider interface {
	// Approve returns nil to approve the request, ErrConsentDenied when
	// the resource owner declines, or another error for failures.
	Approve(ctx context.Context, req *ConsentRequest) error
}

// AutoApproveConsent approves every authorization request. This matches
// single-user deployments where the resource owner operates the server.
type AutoApproveConsent struct{}

// Approve always approves.
func (AutoApproveConsent) Approve(ctx context.Context, req *ConsentRequest) error {
	return nil
}
