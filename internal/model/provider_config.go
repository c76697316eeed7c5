// internal/model/provider_config.go
package model

import "time"

// ProviderKind is the per-account delivery backend preference.
type ProviderKind string

const (
	ProviderTransactional ProviderKind = "transactional"
	ProviderSMTP          ProviderKind = "smtp"
)

func (k ProviderKind) Valid() bool {
	return k == ProviderTransactional || k == ProviderSMTP
}

// Encryption is the SMTP connection security mode.
type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionSSL      Encryption = "ssl" // implicit TLS
	EncryptionSTARTTLS Encryption = "tls"
)

func (e Encryption) Valid() bool {
	return e == EncryptionNone || e == EncryptionSSL || e == EncryptionSTARTTLS
}

type SMTPConfig struct {
	ID         int        `db:"id" json:"id,omitempty"`
	AccountID  int        `db:"user_id" json:"user_id"`
	Host       string     `db:"host" json:"host"`
	Port       int        `db:"port" json:"port"`
	Username   string     `db:"username" json:"username"`
	Password   string     `db:"password" json:"password,omitempty"`
	Encryption Encryption `db:"encryption" json:"encryption"`
	FromEmail  string     `db:"from_email" json:"from_email"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at,omitempty"`
}

// Public returns a copy without the password.
func (c SMTPConfig) Public() SMTPConfig {
	c.Password = ""
	return c
}
