package manifest

import (
	"encoding/json"
	"fmt"
)

// Components and actions recorded in the change history.
const (
	ComponentProject       = "project"
	ComponentBuildingShell = "buildingShell"
	ComponentTradeRacks    = "tradeRacks"
	ComponentMEPItems      = "mepItems"
	ComponentMeasurements  = "measurements"
	ComponentUIState       = "uiState"

	ActionUpdate     = "update"
	ActionSave       = "save"
	ActionApply      = "apply"
	ActionActivate   = "activate"
	ActionDelete     = "delete"
	ActionBulkUpdate = "bulkUpdate"
	ActionAdd        = "add"
	ActionRemove     = "remove"
	ActionPosition   = "positionChange"
	ActionParameters = "parameterChange"
)

// titleDetails is the subset of change details that titles read.
type titleDetails struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Type  string `json:"type"`
	Count int    `json:"count"`
	Field string `json:"field"`
}

// Title renders the human-readable history title for a change.
func Title(component, action string, details json.RawMessage) string {
	var d titleDetails
	if len(details) > 0 {
		_ = json.Unmarshal(details, &d)
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}

	switch component {
	case ComponentTradeRacks:
		switch action {
		case ActionSave:
			return fmt.Sprintf("Saved rack configuration %q", name)
		case ActionApply:
			return fmt.Sprintf("Applied rack configuration %q", name)
		case ActionActivate:
			return fmt.Sprintf("Activated rack configuration %q", name)
		case ActionDelete:
			return fmt.Sprintf("Deleted rack configuration %q", name)
		case ActionPosition:
			return "Moved trade rack"
		case ActionParameters:
			if d.Field != "" {
				return fmt.Sprintf("Changed rack %s", d.Field)
			}
			return "Updated rack parameters"
		}
	case ComponentMEPItems:
		switch action {
		case ActionAdd:
			return fmt.Sprintf("Added %s %q", kindLabel(d.Type), name)
		case ActionRemove:
			return fmt.Sprintf("Removed %s %q", kindLabel(d.Type), name)
		case ActionBulkUpdate:
			return fmt.Sprintf("Updated %d MEP items", d.Count)
		}
	case ComponentMeasurements:
		return fmt.Sprintf("Updated %d measurements", d.Count)
	case ComponentBuildingShell:
		return "Updated building shell"
	case ComponentUIState:
		return "Updated UI state"
	case ComponentProject:
		return "Updated project details"
	}
	return component + " " + action
}

func kindLabel(t string) string {
	switch t {
	case "duct":
		return "duct"
	case "pipe":
		return "pipe"
	case "conduit":
		return "conduit"
	case "cableTray":
		return "cable tray"
	}
	return "MEP item"
}
