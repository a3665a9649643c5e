package discovery

import "codeberg.org/mutker/mupimqtt/internal/channel"

const manufacturer = "MuPiBox.de"

// Device is the Home Assistant device registry block shared by every entity
// of one box, so they group under a single device page.
type Device struct {
	Identifiers      []string `json:"identifiers"`
	Name             string   `json:"name"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	SWVersion        string   `json:"sw_version,omitempty"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}

// Document is the JSON body of one discovery message.
type Document struct {
	Name                      string `json:"name"`
	PayloadOn                 string `json:"payload_on,omitempty"`
	PayloadOff                string `json:"payload_off,omitempty"`
	UnitOfMeasurement         string `json:"unit_of_measurement,omitempty"`
	Icon                      string `json:"icon,omitempty"`
	StateTopic                string `json:"state_topic"`
	CommandTopic              string `json:"command_topic,omitempty"`
	AvailabilityTopic         string `json:"availability_topic"`
	UniqueID                  string `json:"unique_id"`
	DeviceClass               string `json:"device_class,omitempty"`
	ExpireAfter               int    `json:"expire_after,omitempty"`
	SuggestedDisplayPrecision int    `json:"suggested_display_precision,omitempty"`
	ValueTemplate             string `json:"value_template,omitempty"`
	Min                       *int   `json:"min,omitempty"`
	Max                       *int   `json:"max,omitempty"`
	Device                    Device `json:"device"`
}

func NewDevice(id channel.Identity) Device {
	device := Device{
		Identifiers:  []string{id.ClientID + "_mupibox"},
		Name:         id.DisplayName,
		Manufacturer: manufacturer,
		Model:        "Your MuPiBox: " + id.Host,
		SWVersion:    id.FirmwareVersion,
	}
	if id.Host != "" {
		device.ConfigurationURL = "http://" + id.Host
	}

	return device
}

// Build renders the discovery document of one channel.
func Build(id channel.Identity, topics channel.Topics, c channel.Channel) Document {
	doc := Document{
		Name:                      c.Title,
		PayloadOn:                 c.PayloadOn,
		PayloadOff:                c.PayloadOff,
		UnitOfMeasurement:         c.Unit,
		Icon:                      c.Icon,
		StateTopic:                topics.State(c.Name),
		AvailabilityTopic:         topics.Availability(),
		UniqueID:                  id.ClientID + "_mupibox_" + c.Name,
		DeviceClass:               c.DeviceClass,
		ExpireAfter:               c.ExpireAfter,
		SuggestedDisplayPrecision: c.DisplayPrecision,
		ValueTemplate:             c.ValueTemplate,
		Device:                    NewDevice(id),
	}

	if c.Command {
		doc.CommandTopic = topics.Command(c.Name)
	}

	if c.Range != nil {
		low, high := c.Range.Min, c.Range.Max
		doc.Min = &low
		doc.Max = &high
	}

	return doc
}
