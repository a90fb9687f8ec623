package main

import (
	"flag"
	"os"
)

// Config holds the flags and environment-derived settings for the host
// process: which serial device carries the P2P link, and where (if
// anywhere) to publish telemetry.
type Config struct {
	SerialPort string
	BaudRate   int
	MQTTURL    string
	HTTPAddr   string
}

var defaultConfig = Config{
	SerialPort: "/dev/ttyUSB0",
	BaudRate:   115200,
	MQTTURL:    "",
	HTTPAddr:   ":8080",
}

func init() {
	if val := os.Getenv("P2PBOT_SERIAL_PORT"); val != "" {
		defaultConfig.SerialPort = val
	}
	if val := os.Getenv("P2PBOT_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("P2PBOT_HTTP_ADDR"); val != "" {
		defaultConfig.HTTPAddr = val
	}
}

// SetupFlags registers the config's command line flags against the
// default flag.CommandLine, so they appear alongside any other package's
// own init-time flag registrations.
func SetupFlags() *Config {
	c := defaultConfig
	flag.StringVar(&c.SerialPort, "serial", c.SerialPort, "Serial device carrying the P2P link.")
	flag.IntVar(&c.BaudRate, "baud", c.BaudRate, "Serial baud rate.")
	flag.StringVar(&c.MQTTURL, "mqtt-url", c.MQTTURL, "MQTT broker URL for telemetry (empty disables publishing).")
	flag.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "Address to serve the debug websocket bridge on.")
	return &c
}
