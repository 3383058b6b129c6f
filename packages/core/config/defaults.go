package config

// Built-in defaults.
const (
	DefaultTimeout        = 10000 // 10 seconds
	DefaultConnectTimeout = 10000 // 10 seconds
	DefaultDelayMean      = 2000  // 2 seconds
	DefaultDelayStdDev    = 1000  // 1 second
	DefaultOnError        = "continue"
	DefaultForwardedFor   = "1.2.3.4"
	DefaultTLSFingerprint = "go"
	DefaultBucket         = "."
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		DelayMean:      DefaultDelayMean,
		DelayStdDev:    DefaultDelayStdDev,
		MaxRate:        0,
		OnError:        DefaultOnError,
		ForwardedFor:   StringPtr(DefaultForwardedFor),
		Bucket:         DefaultBucket,
		TLSFingerprint: DefaultTLSFingerprint,
		ValidateSSL:    BoolPtr(true),
		Verbose:        BoolPtr(false),
		NoColor:        BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Timeout == defaults.Timeout &&
		c.ConnectTimeout == defaults.ConnectTimeout &&
		c.DelayMean == defaults.DelayMean &&
		c.DelayStdDev == defaults.DelayStdDev &&
		c.MaxRate == defaults.MaxRate &&
		c.OnError == defaults.OnError &&
		c.GetForwardedFor() == defaults.GetForwardedFor() &&
		c.Bucket == defaults.Bucket &&
		c.History == defaults.History &&
		c.Proxy == defaults.Proxy &&
		len(c.DNSServers) == 0 &&
		c.TLSFingerprint == defaults.TLSFingerprint &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.LogFile == defaults.LogFile &&
		c.SlackWebhook == "" &&
		c.TeamsWebhook == "" &&
		c.NotifyOn == "" &&
		len(c.Headers) == 0 &&
		len(c.UserAgents) == 0
}
