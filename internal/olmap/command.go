package olmap

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// Op names a browser-side map operation.
type Op string

const (
	OpReset             Op = "reset"
	OpTileSource        Op = "tileSource"
	OpViewOptions       Op = "viewOptions"
	OpAddLayer          Op = "addLayer"
	OpAddFeatures       Op = "addFeatures"
	OpUpdateFeature     Op = "updateFeature"
	OpRemoveFeature     Op = "removeFeature"
	OpAddInteraction    Op = "addInteraction"
	OpUpdateInteraction Op = "updateInteraction"
	OpRemoveInteraction Op = "removeInteraction"
)

// Command is one mutation the browser map has to mirror.
type Command struct {
	Op   Op  `json:"op"`
	Args any `json:"args,omitempty"`
}

// JSON encodes the command for the browser.
func (c Command) JSON() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ResetArgs clears the browser map before a snapshot is replayed.
type ResetArgs struct {
	Projection string `json:"projection"`
}

// LayerArgs adds a vector layer.
type LayerArgs struct {
	ID     string `json:"id"`
	ZIndex int    `json:"zIndex"`
}

// FeaturesArgs adds features to a layer.
type FeaturesArgs struct {
	Layer    string             `json:"layer"`
	Features []*geojson.Feature `json:"features"`
}

// FeatureArgs updates a single feature of a layer.
type FeatureArgs struct {
	Layer   string           `json:"layer"`
	Feature *geojson.Feature `json:"feature"`
}

// RemoveFeatureArgs removes a feature by id.
type RemoveFeatureArgs struct {
	Layer string `json:"layer"`
	ID    string `json:"id"`
}

// InteractionStateArgs toggles or removes an interaction.
type InteractionStateArgs struct {
	ID     string `json:"id"`
	Active *bool  `json:"active,omitempty"`
}
