package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ErrMissingStripeUserID はトークン応答にstripe_user_idが含まれないことを示す。
var ErrMissingStripeUserID = errors.New("stripe_user_id missing from token response")

// ProviderError はStripeがコード交換を拒否したことを表す。
// Messageはプロバイダーのerror_description（無ければerror）をそのまま保持する。
type ProviderError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stripe token exchange rejected (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// StripeCredentials はコード交換で得られる連携アカウント情報。
type StripeCredentials struct {
	StripeUserID string
	Scope        string
	Livemode     bool
}

// StripeConnectConfig はStripe Connect OAuthの設定。
type StripeConnectConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// StripeConnectProvider はStripe Connectの認可URL生成とコード交換を行う。
type StripeConnectProvider struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewStripeConnectProvider はStripeConnectProviderを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使う。
func NewStripeConnectProvider(cfg StripeConnectConfig, httpClient *http.Client) *StripeConnectProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://connect.stripe.com/oauth/authorize"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://connect.stripe.com/oauth/token"
	}
	if cfg.Scope == "" {
		cfg.Scope = "read_write"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &StripeConnectProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{cfg.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// AuthorizeURL はstateを埋め込んだStripe Connectの認可URLを返す。
// response_type=code, client_id, scope, redirect_uri, stateを含む。
func (p *StripeConnectProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeCode は認可コードを連携アカウント情報に交換する。
// Stripeが拒否した場合は*ProviderError、stripe_user_idが無い場合は
// ErrMissingStripeUserIDを返す。
func (p *StripeConnectProvider) ExchangeCode(ctx context.Context, code string) (*StripeCredentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, providerErrorFrom(re)
		}
		return nil, fmt.Errorf("stripe token request failed: %w", err)
	}

	stripeUserID, _ := token.Extra("stripe_user_id").(string)
	if stripeUserID == "" {
		return nil, ErrMissingStripeUserID
	}

	scope, _ := token.Extra("scope").(string)
	livemode, _ := token.Extra("livemode").(bool)

	return &StripeCredentials{
		StripeUserID: stripeUserID,
		Scope:        scope,
		Livemode:     livemode,
	}, nil
}

func providerErrorFrom(re *oauth2.RetrieveError) *ProviderError {
	pe := &ProviderError{Code: re.ErrorCode}
	if re.Response != nil {
		pe.StatusCode = re.Response.StatusCode
	}
	switch {
	case re.ErrorDescription != "":
		pe.Message = re.ErrorDescription
	case re.ErrorCode != "":
		pe.Message = re.ErrorCode
	default:
		pe.Message = fmt.Sprintf("token exchange failed with status %d", pe.StatusCode)
	}
	return pe
}
