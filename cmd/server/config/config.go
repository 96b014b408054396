package config

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

// AppConfig is the root configuration container for the portal server.
type AppConfig struct {
	Debug   bool    `json:"debug" yaml:"debug"`
	Server  Server  `json:"server" yaml:"server"`
	Portal  Portal  `json:"portal" yaml:"portal"`
	Session Session `json:"session" yaml:"session"`
	Data    Data    `json:"data" yaml:"data"`
	Hooks   Hooks   `json:"hooks" yaml:"hooks"`
	Storage Storage `json:"storage" yaml:"storage"`
}

type Server struct {
	Address string `json:"address" yaml:"address"`
}

// Portal holds the public facing site settings used to render links.
type Portal struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// Session holds the settings for validating bearer tokens minted by the
// identity provider.
type Session struct {
	SigningKey string `json:"signing_key" yaml:"signing_key"`
	Issuer     string `json:"issuer" yaml:"issuer"`
}

type Data struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// Hooks holds the webhook endpoints for admin alerts and mail delivery.
type Hooks struct {
	AlertsEndpoint string `json:"alerts_endpoint" yaml:"alerts_endpoint"`
	MailEndpoint   string `json:"mail_endpoint" yaml:"mail_endpoint"`
	// Credential is the privileged token the mail hook expects. The server
	// refuses manage link delivery without it.
	Credential string `json:"credential" yaml:"credential"`
}

// Storage holds the S3 compatible bucket settings for profile photos.
type Storage struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Region    string `json:"region" yaml:"region"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
}

// Validate enforces the settings the server cannot start without. Optional
// integrations (hooks, storage) degrade at request time instead.
func (c AppConfig) Validate() error {
	if err := validation.ValidateStruct(&c.Data,
		validation.Field(&c.Data.DSN, validation.Required),
	); err != nil {
		return err
	}

	return validation.ValidateStruct(&c.Session,
		validation.Field(&c.Session.SigningKey, validation.Required),
	)
}

func (c AppConfig) GetAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}
