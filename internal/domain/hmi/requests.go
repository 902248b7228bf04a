package hmi

import (
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// HMI API method names
const (
	MethodUIAddSubMenu           = "UI.AddSubMenu"
	MethodUIAddCommand           = "UI.AddCommand"
	MethodVRAddCommand           = "VR.AddCommand"
	MethodUISetGlobalProperties  = "UI.SetGlobalProperties"
	MethodTTSSetGlobalProperties = "TTS.SetGlobalProperties"
	MethodOnButtonSubscription   = "Buttons.OnButtonSubscription"
	MethodSubscribeVehicleData   = "VehicleInfo.SubscribeVehicleData"
	MethodSubscribeWayPoints     = "Navigation.SubscribeWayPoints"
	MethodActivateApp            = "BasicCommunication.ActivateApp"
	MethodOnResumeAudioSource    = "BasicCommunication.OnResumeAudioSource"
	MethodOnPutFile              = "BasicCommunication.OnPutFile"
	MethodOnAppActivated         = "BasicCommunication.OnAppActivated"
	MethodOnExitAllApplications  = "BasicCommunication.OnExitAllApplications"
	MethodOnAwakeSDL             = "BasicCommunication.OnAwakeSDL"
	MethodOnAppDeactivated       = "BasicCommunication.OnAppDeactivated"
	MethodOnIgnitionCycleOver    = "BasicCommunication.OnIgnitionCycleOver"
	vrTypeCommand                = "Command"
	vrTypeChoice                 = "Choice"
)

// OnPutFile announces a restored application file
func OnPutFile(hmiAppID uint32, path string, f types.AppFile) Request {
	return Request{
		Method: MethodOnPutFile,
		Params: map[string]any{
			"appID":          hmiAppID,
			"fileName":       f.FileName,
			"syncFileName":   path,
			"fileType":       f.FileType,
			"persistentFile": f.IsPersistent,
		},
		Notification: true,
	}
}

// AddSubMenu builds UI.AddSubMenu
func AddSubMenu(hmiAppID uint32, sm types.SubMenu) Request {
	menuParams := map[string]any{"menuName": sm.MenuName}
	if sm.Position != nil {
		menuParams["position"] = *sm.Position
	}
	return Request{
		Method: MethodUIAddSubMenu,
		Params: map[string]any{
			"appID":      hmiAppID,
			"menuID":     sm.MenuID,
			"menuParams": menuParams,
		},
	}
}

// UIAddCommand builds UI.AddCommand for a command with menu params
func UIAddCommand(hmiAppID uint32, cmd types.Command) Request {
	params := map[string]any{
		"appID": hmiAppID,
		"cmdID": cmd.CmdID,
	}
	if mp := cmd.MenuParams; mp != nil {
		menuParams := map[string]any{"menuName": mp.MenuName}
		if mp.ParentID != 0 {
			menuParams["parentID"] = mp.ParentID
		}
		if mp.Position != nil {
			menuParams["position"] = *mp.Position
		}
		params["menuParams"] = menuParams
	}
	if cmd.CmdIcon != nil {
		params["cmdIcon"] = image(*cmd.CmdIcon)
	}
	return Request{Method: MethodUIAddCommand, Params: params}
}

// VRAddCommand builds VR.AddCommand for a command with voice commands
func VRAddCommand(hmiAppID uint32, cmd types.Command) Request {
	return Request{
		Method: MethodVRAddCommand,
		Params: map[string]any{
			"appID":      hmiAppID,
			"cmdID":      cmd.CmdID,
			"vrCommands": cmd.VRCommands,
			"type":       vrTypeCommand,
		},
	}
}

// VRAddChoice builds VR.AddCommand for one choice of a choice set
func VRAddChoice(hmiAppID, grammarID uint32, choice types.Choice) Request {
	return Request{
		Method: MethodVRAddCommand,
		Params: map[string]any{
			"appID":      hmiAppID,
			"cmdID":      choice.ChoiceID,
			"vrCommands": choice.VRCommands,
			"type":       vrTypeChoice,
			"grammarID":  grammarID,
		},
	}
}

// UISetGlobalProperties builds UI.SetGlobalProperties
func UISetGlobalProperties(hmiAppID uint32, gp types.GlobalProperties) Request {
	params := map[string]any{"appID": hmiAppID}
	if gp.VRHelpTitle != "" {
		params["vrHelpTitle"] = gp.VRHelpTitle
	}
	if len(gp.VRHelp) > 0 {
		items := make([]map[string]any, 0, len(gp.VRHelp))
		for _, item := range gp.VRHelp {
			entry := map[string]any{"text": item.Text, "position": item.Position}
			if item.Image != nil {
				entry["image"] = image(*item.Image)
			}
			items = append(items, entry)
		}
		params["vrHelp"] = items
	}
	if gp.MenuTitle != "" {
		params["menuTitle"] = gp.MenuTitle
	}
	if gp.MenuIcon != nil {
		params["menuIcon"] = image(*gp.MenuIcon)
	}
	if kp := gp.KeyboardProperties; kp != nil {
		keyboard := map[string]any{}
		if kp.Language != "" {
			keyboard["language"] = kp.Language
		}
		if kp.KeyboardLayout != "" {
			keyboard["keyboardLayout"] = kp.KeyboardLayout
		}
		if kp.KeypressMode != "" {
			keyboard["keypressMode"] = kp.KeypressMode
		}
		if len(kp.LimitedCharacterList) > 0 {
			keyboard["limitedCharacterList"] = kp.LimitedCharacterList
		}
		if kp.AutoCompleteText != "" {
			keyboard["autoCompleteText"] = kp.AutoCompleteText
		}
		params["keyboardProperties"] = keyboard
	}
	return Request{Method: MethodUISetGlobalProperties, Params: params}
}

// TTSSetGlobalProperties builds TTS.SetGlobalProperties
func TTSSetGlobalProperties(hmiAppID uint32, gp types.GlobalProperties) Request {
	params := map[string]any{"appID": hmiAppID}
	if len(gp.HelpPrompt) > 0 {
		params["helpPrompt"] = chunks(gp.HelpPrompt)
	}
	if len(gp.TimeoutPrompt) > 0 {
		params["timeoutPrompt"] = chunks(gp.TimeoutPrompt)
	}
	return Request{Method: MethodTTSSetGlobalProperties, Params: params}
}

// OnButtonSubscription notifies the head unit of a button subscription
func OnButtonSubscription(hmiAppID uint32, button string) Request {
	return Request{
		Method: MethodOnButtonSubscription,
		Params: map[string]any{
			"appID":        hmiAppID,
			"name":         button,
			"isSubscribed": true,
		},
		Notification: true,
	}
}

// SubscribeVehicleData builds VehicleInfo.SubscribeVehicleData
func SubscribeVehicleData(hmiAppID uint32, data []string) Request {
	params := map[string]any{"appID": hmiAppID}
	for _, name := range data {
		params[name] = true
	}
	return Request{Method: MethodSubscribeVehicleData, Params: params}
}

// SubscribeWayPoints builds Navigation.SubscribeWayPoints
func SubscribeWayPoints(hmiAppID uint32) Request {
	return Request{
		Method: MethodSubscribeWayPoints,
		Params: map[string]any{"appID": hmiAppID},
	}
}

// ActivateApp builds BasicCommunication.ActivateApp
func ActivateApp(hmiAppID uint32, level types.HMILevel) Request {
	params := map[string]any{"appID": hmiAppID}
	// FULL is implied by the HMI API when no level is given
	if level != "" && level != types.HMILevelFull {
		params["level"] = string(level)
	}
	return Request{Method: MethodActivateApp, Params: params}
}

// OnResumeAudioSource tells the head unit to resume the application's audio
func OnResumeAudioSource(hmiAppID uint32) Request {
	return Request{
		Method:       MethodOnResumeAudioSource,
		Params:       map[string]any{"appID": hmiAppID},
		Notification: true,
	}
}

func image(img types.Image) map[string]any {
	return map[string]any{"value": img.Value, "imageType": string(img.ImageType)}
}

func chunks(in []types.TTSChunk) []map[string]any {
	out := make([]map[string]any, 0, len(in))
	for _, c := range in {
		out = append(out, map[string]any{"text": c.Text, "type": c.Type})
	}
	return out
}
