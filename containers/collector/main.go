package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/collector"
	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/utils"

	"gopkg.in/yaml.v3"
)

type Configuration struct {
	Collector collector.CollectorConfig `json:"collector" yaml:"collector"`
}

func logError(format string, elems ...interface{}) string {
	s := fmt.Sprintf(format+"\n", elems...)
	os.Stderr.Write([]byte(s))
	return s
}

func log(format string, elems ...interface{}) {
	fmt.Printf(format+"\n", elems...)
}

func printUsage() {
	logError("Usage: ./collector [config_file.yaml] [table_name] [<param>...]")
	logError("")
	logError("Params are dotted key=value pairs (also read from the environment), e.g.:")
	logError("  entraid.tenant_id=...")
	logError("  entraid.client_id=...")
	logError("  entraid.client_secret=...            (or entraid.certificate_file=app.pem)")
	logError("  log_analytics.workspace_id=...")
	logError("  log_analytics.shared_key=...         (or encrypted_shared_key= + identity_file=)")
	logError("  log_analytics.target_table=%s", collector.DefaultTableName)
}

func applyLogging() utils.ClientOptions {
	return utils.ClientOptions{
		DebugLog: func(msg string) {
			log("DBG %s: %s", time.Now().Format(time.Stamp), msg)
		},
		OnWarning: func(msg string) {
			log("WRN %s: %s", time.Now().Format(time.Stamp), msg)
		},
		OnError: func(err error) {
			logError("ERR %s: %s", time.Now().Format(time.Stamp), err.Error())
		},
	}
}

func printConfig(c Configuration) {
	if c.Collector.LogAnalytics.SharedKey != "" {
		c.Collector.LogAnalytics.SharedKey = "<redacted>"
	}
	if c.Collector.EncryptedSharedKey != "" {
		c.Collector.EncryptedSharedKey = "<redacted>"
	}
	if c.Collector.EntraID.ClientSecret != "" {
		c.Collector.EntraID.ClientSecret = "<redacted>"
	}
	b, _ := yaml.Marshal(c)
	log("Configs in use:\n----------------------------------\n%s----------------------------------\n", string(b))
}

func parseConfig(args []string) (*Configuration, error) {
	conf := &Configuration{}
	params := []string{}
	for _, a := range args {
		if strings.Contains(a, "=") {
			params = append(params, a)
			continue
		}
		if _, err := os.Stat(a); err == nil {
			if err := loadConfigFile(a, conf); err != nil {
				return nil, err
			}
			continue
		}
		// A bare argument that is not a file is the destination table name.
		conf.Collector.LogAnalytics.TargetTable = a
	}
	// Read params from the CLI, then from the environment.
	if err := utils.ParseParams("collector", params, conf); err != nil {
		return nil, fmt.Errorf("ParseParams(): %v", err)
	}
	if err := utils.ParseParams("collector", os.Environ(), conf); err != nil {
		return nil, fmt.Errorf("ParseParams(): %v", err)
	}
	return conf, nil
}

func loadConfigFile(filePath string, conf *Configuration) error {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("os.ReadFile(): %v", err)
	}
	var jsonErr, yamlErr error
	if jsonErr = json.Unmarshal(b, conf); jsonErr == nil {
		return nil
	}
	if yamlErr = yaml.Unmarshal(b, conf); yamlErr == nil {
		return nil
	}
	return fmt.Errorf("decoding error: json=%v yaml=%v", jsonErr, yamlErr)
}

func main() {
	log("starting")

	conf, err := parseConfig(os.Args[1:])
	if err != nil {
		logError("error: %s", err)
		printUsage()
		os.Exit(1)
	}
	conf.Collector.ClientOptions = applyLogging()
	printConfig(*conf)

	col, err := collector.NewCollector(conf.Collector, nil)
	if err != nil {
		logError("error: %v", err)
		printUsage()
		os.Exit(1)
	}

	res, err := col.Run()
	if err != nil {
		logError("run failed: %v", err)
		os.Exit(1)
	}

	log("done: %d users extracted, %d rows written, %d records skipped", res.UsersExtracted, res.RowsWritten, res.RecordsSkipped)
}
