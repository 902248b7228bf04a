package app

import "github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"

func mergeContent(live, restored types.Content) types.Content {
	out := live

	files := make(map[string]bool, len(live.Files))
	for _, f := range live.Files {
		files[f.FileName] = true
	}
	for _, f := range restored.Files {
		if !files[f.FileName] {
			out.Files = append(out.Files, f)
		}
	}

	menus := make(map[uint32]bool, len(live.SubMenus))
	for _, sm := range live.SubMenus {
		menus[sm.MenuID] = true
	}
	for _, sm := range restored.SubMenus {
		if !menus[sm.MenuID] {
			out.SubMenus = append(out.SubMenus, sm)
		}
	}

	cmds := make(map[uint32]bool, len(live.Commands))
	for _, c := range live.Commands {
		cmds[c.CmdID] = true
	}
	for _, c := range restored.Commands {
		if !cmds[c.CmdID] {
			out.Commands = append(out.Commands, c)
		}
	}

	sets := make(map[uint32]bool, len(live.ChoiceSets))
	for _, cs := range live.ChoiceSets {
		sets[cs.ChoiceSetID] = true
	}
	for _, cs := range restored.ChoiceSets {
		if !sets[cs.ChoiceSetID] {
			out.ChoiceSets = append(out.ChoiceSets, cs)
		}
	}

	if out.GlobalProperties == nil {
		out.GlobalProperties = restored.GlobalProperties
	}

	out.Subscriptions.Buttons = union(live.Subscriptions.Buttons, restored.Subscriptions.Buttons)
	out.Subscriptions.VehicleData = union(live.Subscriptions.VehicleData, restored.Subscriptions.VehicleData)
	out.Subscriptions.WayPoints = live.Subscriptions.WayPoints || restored.Subscriptions.WayPoints
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := a
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
