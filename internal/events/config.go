package events

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads the sinks file. ${VAR} references are expanded from the
// environment first. An empty path yields a Config without sinks.
func LoadConfig(file string) (Config, error) {
	var c Config
	if file == "" {
		return c, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return c, fmt.Errorf("read events config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return c, fmt.Errorf("parse events config: %w", err)
	}
	return c, c.Validate()
}

// Validate checks the enabled sinks.
func (c Config) Validate() error {
	var errs []error
	if wh := c.Sinks.Webhook; wh.Enabled {
		u, err := url.Parse(wh.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("webhook: endpoint %q is not an http(s) URL", wh.Endpoint))
		}
		errs = append(errs, checkPatterns("webhook", wh.Events))
	}
	if c.Sinks.Redis.Enabled {
		errs = append(errs, checkPatterns("redis", c.Sinks.Redis.Events))
	}
	if k := c.Sinks.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			errs = append(errs, errors.New("kafka: no brokers"))
		}
		errs = append(errs, checkPatterns("kafka", k.Events))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry: max_attempts must not be negative"))
	}
	return errors.Join(errs...)
}

func checkPatterns(sink string, patterns []string) error {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("%s: bad event pattern %q", sink, p)
		}
	}
	return nil
}
