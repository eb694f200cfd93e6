// Package collector sequences one full-refresh run: extract the current
// user directory snapshot from Entra ID and submit it to Log Analytics as a
// single batch. Each run is independent; rerunning re-submits a fresh
// snapshot and the destination keeps both (it has no upsert semantics).
package collector

import (
	"fmt"

	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/entraid"
	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/loganalytics"
)

type Collector struct {
	conf      CollectorConfig
	decryptor SecretDecryptor
}

// RunResult summarizes a completed run.
type RunResult struct {
	UsersExtracted int
	RowsWritten    int
	RecordsSkipped int
}

// NewCollector validates the configuration and prepares a run. A nil
// decryptor defaults to an AgeDecryptor over the configured identity file;
// it is only consulted when encrypted_shared_key is set.
func NewCollector(conf CollectorConfig, decryptor SecretDecryptor) (*Collector, error) {
	conf.ClientOptions = conf.ClientOptions.WithDefaults()
	if conf.LogAnalytics.TargetTable == "" {
		conf.LogAnalytics.TargetTable = DefaultTableName
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	conf.EntraID.ClientOptions = conf.ClientOptions
	conf.LogAnalytics.ClientOptions = conf.ClientOptions

	if decryptor == nil {
		decryptor = &AgeDecryptor{IdentityFile: conf.IdentityFile}
	}
	return &Collector{conf: conf, decryptor: decryptor}, nil
}

// Run performs one extraction and submission pass.
func (c *Collector) Run() (RunResult, error) {
	res := RunResult{}

	laConf := c.conf.LogAnalytics
	if c.conf.EncryptedSharedKey != "" {
		key, err := c.decryptor.Decrypt(c.conf.EncryptedSharedKey)
		if err != nil {
			return res, fmt.Errorf("decrypting shared key: %v", err)
		}
		laConf.SharedKey = key
	}

	sink, err := loganalytics.NewClient(laConf)
	if err != nil {
		return res, err
	}
	source, err := entraid.NewClient(c.conf.EntraID)
	if err != nil {
		return res, err
	}

	c.conf.ClientOptions.DebugLog("extracting users from the directory")
	users, skipped, err := source.Users(c.conf.Filter)
	if err != nil {
		return res, err
	}
	res.UsersExtracted = len(users)
	res.RecordsSkipped = skipped

	if len(users) == 0 {
		c.conf.ClientOptions.DebugLog("no users extracted, nothing to submit")
		return res, nil
	}

	records := make([]interface{}, 0, len(users))
	for _, u := range users {
		records = append(records, u)
	}
	out, err := sink.Submit(records)
	if err != nil {
		return res, err
	}
	res.RowsWritten = out.RowsWritten

	c.conf.ClientOptions.DebugLog(fmt.Sprintf("run complete: %d rows written to %s, %d records skipped", res.RowsWritten, c.conf.LogAnalytics.TargetTable, res.RecordsSkipped))
	return res, nil
}
