package rpc

import (
	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/config"
	"github.com/chronoplan/chronoplan/usercontext"
)

// Card is the public agent descriptor served at /.well-known/a2a.json
// and by the agent.card RPC method.
type Card struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	RPCEndpoint  string       `json:"rpc_endpoint"`
	Capabilities []CardTool   `json:"capabilities"`
	Auth         []AuthScheme `json:"auth"`
}

// CardTool is one capability entry in the card.
type CardTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AuthScheme describes one accepted authentication scheme.
type AuthScheme struct {
	Scheme string `json:"scheme"`
	Header string `json:"header,omitempty"`
	Issuer string `json:"issuer,omitempty"`
}

// BuildCard assembles the card from config and the tool registry.
func BuildCard(cfg *config.Config) Card {
	card := Card{
		ID:          cfg.Agent.ID,
		Name:        cfg.Agent.Name,
		Version:     cfg.Agent.Version,
		Description: cfg.Agent.Description,
		RPCEndpoint: cfg.Agent.PublicURL + "/a2a/rpc",
	}
	for _, t := range agent.Tools {
		card.Capabilities = append(card.Capabilities, CardTool{Name: t.Name, Description: t.Description})
	}
	if cfg.Server.DevSecret != "" {
		card.Auth = append(card.Auth, AuthScheme{Scheme: "shared_secret", Header: devSecretHeader})
	}
	if cfg.Server.OIDC.Issuer != "" {
		card.Auth = append(card.Auth, AuthScheme{Scheme: "oidc", Issuer: cfg.Server.OIDC.Issuer})
	}
	return card
}

// CredentialSpec is one entry in the credentials manifest.
type CredentialSpec struct {
	Key         string `json:"key"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	AcquireURL  string `json:"acquire_url"`
}

// CredentialsManifest lists the per-user credentials tool calls must
// carry, served at /.well-known/a2a-credentials.json.
func CredentialsManifest() []CredentialSpec {
	return []CredentialSpec{
		{
			Key:         usercontext.CredentialReclaimAPIKey,
			Provider:    "reclaim",
			Description: "Reclaim.ai API key for task management.",
			AcquireURL:  "https://app.reclaim.ai/settings/developer",
		},
		{
			Key:         usercontext.CredentialNylasAPIKey,
			Provider:    "nylas",
			Description: "Nylas v3 API key for calendar access.",
			AcquireURL:  "https://dashboard-v3.nylas.com/",
		},
		{
			Key:         usercontext.CredentialNylasGrantID,
			Provider:    "nylas",
			Description: "Nylas grant id identifying the connected calendar account.",
			AcquireURL:  "https://dashboard-v3.nylas.com/",
		},
	}
}
