package tele_config

type Config struct {
	Enable bool `hcl:"enable"`

	BrokerURL    string `hcl:"broker_url"`
	MqttPassword string `hcl:"mqtt_password"`
	// ClientID defaults to device serial
	ClientID string `hcl:"client_id"`

	KeepaliveSec      int  `hcl:"keepalive_sec"`
	PingTimeoutSec    int  `hcl:"ping_timeout_sec"`
	NetworkTimeoutSec int  `hcl:"network_timeout_sec"`
	LogDebug          bool `hcl:"log_debug"`
}
