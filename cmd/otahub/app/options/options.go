package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/otahub/internal/otahub"
	"github.com/autopeer-io/otahub/pkg/app"
	"github.com/autopeer-io/otahub/pkg/log"
	"github.com/autopeer-io/otahub/pkg/options"
)

type HubOptions struct {
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	WebSocketOptions *options.WebSocketOptions `json:"ws" mapstructure:"ws"`
	OTAOptions       *options.OTAOptions       `json:"ota" mapstructure:"ota"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	StoreOptions     *options.StoreOptions     `json:"store" mapstructure:"store"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*HubOptions)(nil)

func NewHubOptions() *HubOptions {
	o := &HubOptions{
		HttpOptions:      options.NewHttpOptions(),
		WebSocketOptions: options.NewWebSocketOptions(),
		OTAOptions:       options.NewOTAOptions(),
		S3Options:        options.NewS3Options(),
		MqttOptions:      options.NewMqttOptions(),
		StoreOptions:     options.NewStoreOptions(),
		Log:              log.NewOptions(),
	}

	return o
}

func (o *HubOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.WebSocketOptions.AddFlags(fss.FlagSet("ws"))
	o.OTAOptions.AddFlags(fss.FlagSet("ota"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *HubOptions) Complete() error {
	return nil
}

func (o *HubOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.WebSocketOptions.Validate()...)
	errs = append(errs, o.OTAOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *HubOptions) Config() (*otahub.Config, error) {
	return &otahub.Config{
		HttpOptions:      o.HttpOptions,
		WebSocketOptions: o.WebSocketOptions,
		OTAOptions:       o.OTAOptions,
		S3Options:        o.S3Options,
		MqttOptions:      o.MqttOptions,
		StoreOptions:     o.StoreOptions,
	}, nil
}
