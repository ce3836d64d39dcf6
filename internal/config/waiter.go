package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	UnitHour  = "hour"
	UnitMonth = "month"
	UnitYear  = "year"
)

// WaiterConfig describes the billable resource families handled by the service.
// It is read once at startup and never mutated afterwards.
type WaiterConfig struct {
	RegionName         string         `mapstructure:"region_name"`
	NotificationTopics []string       `mapstructure:"notification_topics"`
	Families           []FamilyConfig `mapstructure:"families"`
	Products           []ProductSeed  `mapstructure:"products"`
}

type FamilyConfig struct {
	Name         string            `mapstructure:"name"`
	Exchange     string            `mapstructure:"exchange"`
	ResourceType string            `mapstructure:"resource_type"`
	Service      string            `mapstructure:"service"`
	DisplayName  string            `mapstructure:"display_name"`
	Unit         string            `mapstructure:"unit"`
	Events       EventTypes        `mapstructure:"events"`
	Extensions   []ExtensionConfig `mapstructure:"extensions"`
}

// EventTypes maps lifecycle actions to the upstream event type names.
// Empty entries are not subscribed.
type EventTypes struct {
	Create  string   `mapstructure:"create"`
	Delete  string   `mapstructure:"delete"`
	Resize  []string `mapstructure:"resize"`
	Suspend string   `mapstructure:"suspend"`
	Resume  string   `mapstructure:"resume"`
}

type ExtensionConfig struct {
	Name    string `mapstructure:"name"`
	Product string `mapstructure:"product"`
}

type ProductSeed struct {
	Name        string `mapstructure:"name"`
	Service     string `mapstructure:"service"`
	Region      string `mapstructure:"region"`
	UnitPrice   string `mapstructure:"unit_price"`
	Description string `mapstructure:"description"`
}

func DefaultWaiterConfig() WaiterConfig {
	return WaiterConfig{
		RegionName:         "RegionOne",
		NotificationTopics: []string{"notifications"},
		Families: []FamilyConfig{
			{
				Name:         "share",
				Exchange:     "manila",
				ResourceType: "share",
				Service:      "share",
				DisplayName:  "Share",
				Unit:         UnitHour,
				Events: EventTypes{
					Create:  "share.create.end",
					Delete:  "share.delete.end",
					Resize:  []string{"share.extend.end", "share.shrink.end"},
					Suspend: "share.suspend.end",
					Resume:  "share.resume.end",
				},
				Extensions: []ExtensionConfig{
					{Name: "running_size", Product: "share.size"},
					{Name: "suspended_size", Product: "share.size.suspended"},
				},
			},
			{
				Name:         "volume",
				Exchange:     "cinder",
				ResourceType: "volume",
				Service:      "block_storage",
				DisplayName:  "Volume",
				Unit:         UnitHour,
				Events: EventTypes{
					Create: "volume.create.end",
					Delete: "volume.delete.end",
					Resize: []string{"volume.resize.end"},
				},
				Extensions: []ExtensionConfig{
					{Name: "running_size", Product: "volume.size"},
				},
			},
		},
	}
}

// LoadWaiterConfig reads waiter.yml from the configured path, /etc/waiter or
// the working directory. Defaults apply when no file is found.
func LoadWaiterConfig(cfg Config) (WaiterConfig, error) {
	v := viper.New()

	v.SetConfigName("waiter")
	v.SetConfigType("yml")
	if cfg.WaiterConfigPath != "" {
		v.AddConfigPath(cfg.WaiterConfigPath)
	}
	v.AddConfigPath("/etc/waiter")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return WaiterConfig{}, err
		}
		defaults := DefaultWaiterConfig()
		return defaults, validateWaiterConfig(defaults)
	}

	return decodeWaiterConfig(v)
}

func decodeWaiterConfig(v *viper.Viper) (WaiterConfig, error) {
	defaults := DefaultWaiterConfig()
	v.SetDefault("region_name", defaults.RegionName)
	v.SetDefault("notification_topics", defaults.NotificationTopics)

	var cfg WaiterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return WaiterConfig{}, err
	}
	if len(cfg.Families) == 0 {
		cfg.Families = defaults.Families
	}
	for i := range cfg.Families {
		if cfg.Families[i].Unit == "" {
			cfg.Families[i].Unit = UnitHour
		}
		if cfg.Families[i].ResourceType == "" {
			cfg.Families[i].ResourceType = cfg.Families[i].Name
		}
	}
	if err := validateWaiterConfig(cfg); err != nil {
		return WaiterConfig{}, err
	}
	return cfg, nil
}

// Family returns the family with the given name.
func (c WaiterConfig) Family(name string) (FamilyConfig, bool) {
	for _, f := range c.Families {
		if f.Name == name {
			return f, true
		}
	}
	return FamilyConfig{}, false
}

// StreamNames lists the stream names for every exchange and topic pair.
func (c WaiterConfig) StreamNames() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, f := range c.Families {
		for _, topic := range c.NotificationTopics {
			name := StreamName(f.Exchange, topic)
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func StreamName(exchange, topic string) string {
	return exchange + "." + topic + ".info"
}

func validateWaiterConfig(cfg WaiterConfig) error {
	if strings.TrimSpace(cfg.RegionName) == "" {
		return errors.New("region_name cannot be empty")
	}
	if len(cfg.NotificationTopics) == 0 {
		return errors.New("notification_topics cannot be empty")
	}

	names := map[string]struct{}{}
	for _, f := range cfg.Families {
		if strings.TrimSpace(f.Name) == "" {
			return errors.New("family name cannot be empty")
		}
		if _, ok := names[f.Name]; ok {
			return fmt.Errorf("family %q declared twice", f.Name)
		}
		names[f.Name] = struct{}{}

		if f.Exchange == "" {
			return fmt.Errorf("family %q: exchange cannot be empty", f.Name)
		}
		if f.Service == "" {
			return fmt.Errorf("family %q: service cannot be empty", f.Name)
		}
		switch f.Unit {
		case UnitHour, UnitMonth, UnitYear:
		default:
			return fmt.Errorf("family %q: invalid unit %q", f.Name, f.Unit)
		}
		if f.Events.Create == "" {
			return fmt.Errorf("family %q: create event cannot be empty", f.Name)
		}
		if len(f.Extensions) == 0 {
			return fmt.Errorf("family %q: extensions cannot be empty", f.Name)
		}
		for _, ext := range f.Extensions {
			if ext.Name == "" || ext.Product == "" {
				return fmt.Errorf("family %q: extension requires name and product", f.Name)
			}
		}
	}

	for _, p := range cfg.Products {
		if p.Name == "" || p.Service == "" {
			return errors.New("product seed requires name and service")
		}
		if _, err := decimal.NewFromString(p.UnitPrice); err != nil {
			return fmt.Errorf("product %q: invalid unit_price: %w", p.Name, err)
		}
	}
	return nil
}
