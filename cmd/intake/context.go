package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"intake/internal/api"
	"intake/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// apiAddress prefers --api over paths.api_bind.
func (c *commandContext) apiAddress() (string, string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", "", err
	}
	bind := cfg.Paths.APIBind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		bind = strings.TrimSpace(*c.apiFlag)
	}
	return bind, cfg.Paths.APIToken, nil
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	bind, token, err := c.apiAddress()
	if err != nil {
		return err
	}
	client, err := api.NewClient(bind, token)
	if err != nil {
		return fmt.Errorf("connect to daemon: paths.api_bind is empty; set it to reach the daemon API")
	}
	return wrapDialError(fn(client), bind)
}

func wrapDialError(err error, bind string) error {
	if err == nil {
		return nil
	}
	if api.IsUnavailable(err) {
		return fmt.Errorf("connect to daemon: nothing is listening on %s; start it with `intake daemon`", bind)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
