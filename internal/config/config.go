// Package config resolves daemon options from CLI flags, PLANT_ environment
// variables, a TOML file and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/plant-waterer/internal/gpio"
	"github.com/sweeney/plant-waterer/internal/mqtt"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "PLANT_"

// Options is the flat daemon configuration. Fields carry a dotted toml path,
// an env suffix and, where the flag name differs from the field name, a flag tag.
type Options struct {
	Config string `flag:"config"`

	Tick      time.Duration `toml:"daemon.tick" env:"TICK"`
	Heartbeat time.Duration `toml:"daemon.heartbeat" env:"HEARTBEAT"`

	GPIOChip  string `toml:"gpio.chip" env:"GPIO_CHIP" flag:"gpio-chip"`
	PumpPin   int    `toml:"gpio.pump_pin" env:"PUMP_PIN" flag:"pump-pin"`
	ActiveLow bool   `toml:"gpio.active_low" env:"ACTIVE_LOW" flag:"active-low"`

	MQTTBroker   string `toml:"mqtt.broker" env:"MQTT_BROKER" flag:"broker"`
	MQTTClientID string `toml:"mqtt.client_id" env:"MQTT_CLIENT_ID" flag:"client-id"`
	MQTTPrefix   string `toml:"mqtt.prefix" env:"MQTT_PREFIX" flag:"prefix"`
	MQTTUsername string `toml:"mqtt.username" env:"MQTT_USERNAME" flag:"mqtt-username"`
	MQTTPassword string `toml:"mqtt.password" env:"MQTT_PASSWORD" flag:"mqtt-password"`

	HTTPAddr string `toml:"http.addr" env:"HTTP_ADDR" flag:"http"`

	IntervalMinutes int `toml:"watering.interval_minutes" env:"INTERVAL_MINUTES" flag:"interval"`
	AmountML        int `toml:"watering.amount_ml" env:"AMOUNT_ML" flag:"amount"`

	LoggingLevel    string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingManager  string `toml:"logging.manager" env:"LOGGING_MANAGER"`
	LoggingActuator string `toml:"logging.actuator" env:"LOGGING_ACTUATOR"`
	LoggingAttr     string `toml:"logging.attr" env:"LOGGING_ATTR"`
	LoggingMQTT     string `toml:"logging.mqtt" env:"LOGGING_MQTT" flag:"logging-mqtt"`
	LoggingWeb      string `toml:"logging.web" env:"LOGGING_WEB"`
}

// Defaults returns the built-in option values.
func Defaults() Options {
	return Options{
		Config:          "/etc/plant-waterer/config.toml",
		Tick:            time.Second,
		Heartbeat:       15 * time.Minute,
		GPIOChip:        gpio.DefaultChip,
		PumpPin:         gpio.DefaultPinPump,
		MQTTBroker:      "tcp://192.168.1.200:1883",
		MQTTClientID:    "plant-waterer",
		MQTTPrefix:      mqtt.DefaultPrefix,
		HTTPAddr:        ":80",
		IntervalMinutes: 60,
		AmountML:        100,
		LoggingLevel:    "info",
		LoggingFormat:   "text",
	}
}

// RegisterFlags binds every option to a flag on fs, using o's current values as defaults.
func (o *Options) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Config, "config", "c", o.Config, "Path to TOML configuration file")
	fs.DurationVar(&o.Tick, "tick", o.Tick, "State machine tick interval")
	fs.DurationVar(&o.Heartbeat, "heartbeat", o.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&o.GPIOChip, "gpio-chip", o.GPIOChip, "GPIO character device")
	fs.IntVar(&o.PumpPin, "pump-pin", o.PumpPin, "BCM pin number driving the pump relay")
	fs.BoolVar(&o.ActiveLow, "active-low", o.ActiveLow, "Relay energizes on a low output")
	fs.StringVar(&o.MQTTBroker, "broker", o.MQTTBroker, "MQTT broker address (empty to disable)")
	fs.StringVar(&o.MQTTClientID, "client-id", o.MQTTClientID, "MQTT client identifier")
	fs.StringVar(&o.MQTTPrefix, "prefix", o.MQTTPrefix, "MQTT topic prefix")
	fs.StringVar(&o.MQTTUsername, "mqtt-username", o.MQTTUsername, "MQTT username")
	fs.StringVar(&o.MQTTPassword, "mqtt-password", o.MQTTPassword, "MQTT password")
	fs.StringVar(&o.HTTPAddr, "http", o.HTTPAddr, "HTTP status address (empty to disable)")
	fs.IntVar(&o.IntervalMinutes, "interval", o.IntervalMinutes, "Initial watering interval in minutes")
	fs.IntVar(&o.AmountML, "amount", o.AmountML, "Initial watering amount in mL")
	fs.StringVar(&o.LoggingLevel, "logging-level", o.LoggingLevel, "Global logging level (debug, info, warn, error)")
	fs.StringVar(&o.LoggingFormat, "logging-format", o.LoggingFormat, "Logging format (text, json)")
	fs.StringVar(&o.LoggingManager, "logging-manager", o.LoggingManager, "State machine logging level")
	fs.StringVar(&o.LoggingActuator, "logging-actuator", o.LoggingActuator, "Pump logging level")
	fs.StringVar(&o.LoggingAttr, "logging-attr", o.LoggingAttr, "Attribute interface logging level")
	fs.StringVar(&o.LoggingMQTT, "logging-mqtt", o.LoggingMQTT, "MQTT logging level")
	fs.StringVar(&o.LoggingWeb, "logging-web", o.LoggingWeb, "HTTP server logging level")
}

// Validate rejects values the daemon cannot run with.
func (o *Options) Validate() error {
	var errs []error
	if o.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %v", o.Tick))
	}
	if o.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", o.Heartbeat))
	}
	if o.PumpPin < 0 {
		errs = append(errs, fmt.Errorf("pump pin must not be negative, got %d", o.PumpPin))
	}
	if o.IntervalMinutes < 0 || o.IntervalMinutes > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("interval must be within 0..%d, got %d", math.MaxUint16, o.IntervalMinutes))
	}
	if o.AmountML < 0 || o.AmountML > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("amount must be within 0..%d, got %d", math.MaxUint16, o.AmountML))
	}
	return errors.Join(errs...)
}

// Modules returns the per-module logging overrides that are set.
func (o *Options) Modules() map[string]string {
	m := make(map[string]string)
	for name, level := range map[string]string{
		"manager":  o.LoggingManager,
		"actuator": o.LoggingActuator,
		"attr":     o.LoggingAttr,
		"mqtt":     o.LoggingMQTT,
		"web":      o.LoggingWeb,
	} {
		if level != "" {
			m[name] = level
		}
	}
	return m
}

// LoadConfig loads configuration with proper precedence: CLI args > env vars > config file.
// If cmd is provided, flags explicitly set via CLI will not be overwritten.
// A missing config file is not an error.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changedFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	var configPath string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		configPath = f.String()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err == nil {
			var config map[string]any
			if err := toml.Unmarshal(data, &config); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}

			for i := 0; i < v.NumField(); i++ {
				fieldType := t.Field(i)
				if changedFlags[flagName(fieldType)] {
					continue
				}
				if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" {
					if value := getNestedValue(config, tomlPath); value != nil {
						if err := setFieldValue(v.Field(i), value); err != nil {
							return fmt.Errorf("%s: %w", tomlPath, err)
						}
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if changedFlags[flagName(fieldType)] {
			continue
		}
		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				if err := setFieldValueFromString(v.Field(i), envValue); err != nil {
					return fmt.Errorf("%s%s: %w", EnvPrefix, envKey, err)
				}
			}
		}
	}

	return nil
}

// Marshal renders opts as a TOML document using the fields' toml paths.
// Secrets are masked.
func Marshal(opts any) ([]byte, error) {
	v := reflect.ValueOf(opts)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	t := v.Type()

	doc := make(map[string]any)
	for i := 0; i < v.NumField(); i++ {
		tomlPath := t.Field(i).Tag.Get("toml")
		if tomlPath == "" {
			continue
		}
		var value any
		switch f := v.Field(i); {
		case f.Type() == durationType:
			value = time.Duration(f.Int()).String()
		case strings.HasSuffix(tomlPath, "password") && f.String() != "":
			value = "********"
		default:
			value = f.Interface()
		}
		setNestedValue(doc, tomlPath, value)
	}
	return toml.Marshal(doc)
}

var durationType = reflect.TypeOf(time.Duration(0))

func flagName(f reflect.StructField) string {
	if name := f.Tag.Get("flag"); name != "" {
		return name
	}
	return fieldNameToFlag(f.Name)
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Tick" -> "tick".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// setFieldValue sets a field from a decoded TOML value.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		switch d := value.(type) {
		case string:
			parsed, err := time.ParseDuration(d)
			if err != nil {
				return err
			}
			field.SetInt(int64(parsed))
		case int64:
			field.SetInt(d * int64(time.Second))
		default:
			return fmt.Errorf("want duration, got %T", value)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int:
		i, ok := value.(int64)
		if !ok {
			return fmt.Errorf("want integer, got %T", value)
		}
		field.SetInt(i)
	}
	return nil
}

// setFieldValueFromString sets a field from an environment variable.
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	}
	return nil
}
