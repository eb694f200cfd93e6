package collector

import (
	"errors"

	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/entraid"
	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/loganalytics"
	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/utils"
)

// DefaultTableName is the destination table used when none is configured.
const DefaultTableName = "AzureADUsers"

type CollectorConfig struct {
	ClientOptions utils.ClientOptions       `json:"-" yaml:"-"`
	EntraID       entraid.ClientConfig      `json:"entraid" yaml:"entraid"`
	LogAnalytics  loganalytics.ClientConfig `json:"log_analytics" yaml:"log_analytics"`

	// Filter overrides the server-side user filter. Empty uses
	// entraid.DefaultUserFilter.
	Filter string `json:"filter" yaml:"filter"`

	// EncryptedSharedKey is an age-encrypted, base64-encoded workspace
	// shared key. When set it is decrypted with the identity in
	// IdentityFile and replaces log_analytics.shared_key.
	EncryptedSharedKey string `json:"encrypted_shared_key" yaml:"encrypted_shared_key"`
	IdentityFile       string `json:"identity_file" yaml:"identity_file"`
}

// Validate fails fast on anything that would make a submission impossible,
// before any network call is attempted.
func (c *CollectorConfig) Validate() error {
	if c.LogAnalytics.WorkspaceID == "" {
		return errors.New("missing log_analytics.workspace_id")
	}
	if c.LogAnalytics.SharedKey == "" && c.EncryptedSharedKey == "" {
		return errors.New("missing log_analytics.shared_key")
	}
	if c.EncryptedSharedKey != "" && c.IdentityFile == "" {
		return errors.New("encrypted_shared_key requires identity_file")
	}
	if c.LogAnalytics.TargetTable == "" {
		return errors.New("missing log_analytics.target_table")
	}
	if err := c.EntraID.Validate(); err != nil {
		return err
	}
	return nil
}
