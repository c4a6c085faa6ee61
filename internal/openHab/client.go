package openHab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

const (
	itemEndpoint   = "rest/items"
	requestTimeout = 5 * time.Second
)

var ErrUnexpectedStatus = errors.New("unexpected response from openHAB")

// Client mirrors thing status and channel states into openHAB items. Channel
// states go to the item named after the channel UID, thing status to a
// String item named <thing>_status.
type Client interface {
	thing.Callback
	IsEnabled() bool
	GetItem(name string) (Item, error)
	UpdateItemState(name string, state string) error
	MissingItems(channels []thing.ChannelUID) []string
}

type client struct {
	openHabHost string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewClient(host string, logger *zap.Logger) Client {
	return &client{
		openHabHost: strings.TrimSuffix(host, "/"),
		httpClient:  &http.Client{Timeout: requestTimeout},
		logger:      logger.Named("openhab"),
	}
}

func (c *client) IsEnabled() bool {
	return c.openHabHost != ""
}

func (c *client) itemURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", c.openHabHost, itemEndpoint, url.PathEscape(name))
}

func (c *client) GetItem(name string) (Item, error) {
	req, err := http.NewRequest(http.MethodGet, c.itemURL(name), nil)
	if err != nil {
		return Item{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Item{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Item{}, fmt.Errorf("%w: got %v getting %s", ErrUnexpectedStatus, resp.StatusCode, name)
	}
	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return Item{}, fmt.Errorf("decoding item %s: %w", name, err)
	}
	return item, nil
}

// UpdateItemState sets the item state without sending a command to linked
// channels.
func (c *client) UpdateItemState(name string, state string) error {
	req, err := http.NewRequest(http.MethodPut, c.itemURL(name)+"/state", bytes.NewBufferString(state))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: got %v updating %s", ErrUnexpectedStatus, resp.StatusCode, name)
	}
	return nil
}

// MissingItems returns the item names that do not exist in openHAB.
func (c *client) MissingItems(channels []thing.ChannelUID) []string {
	var missing []string
	for _, channel := range channels {
		if _, err := c.GetItem(channel.ItemName()); err != nil {
			c.logger.Debug("item not available", zap.String("item", channel.ItemName()), zap.Error(err))
			missing = append(missing, channel.ItemName())
		}
	}
	return missing
}

func (c *client) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	if !c.IsEnabled() {
		return
	}
	name := StatusItemName(uid)
	if err := c.UpdateItemState(name, string(info.Status)); err != nil {
		c.logger.Warn("unable to update status item", zap.String("item", name), zap.Error(err))
	}
}

func (c *client) StateUpdated(channel thing.ChannelUID, state thing.State) {
	if !c.IsEnabled() {
		return
	}
	name := channel.ItemName()
	if err := c.UpdateItemState(name, state.String()); err != nil {
		c.logger.Warn("unable to update item", zap.String("item", name), zap.Error(err))
	}
}

// StatusItemName is the String item holding a thing's status.
func StatusItemName(uid thing.UID) string {
	return thing.NewChannelUID(uid, "status").ItemName()
}
