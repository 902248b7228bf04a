package types

// ImageType distinguishes images shipped with the head unit from uploaded files
type ImageType string

const (
	ImageStatic  ImageType = "STATIC"
	ImageDynamic ImageType = "DYNAMIC"
)

// Image references an icon either by static id or by uploaded file name
type Image struct {
	Value     string    `json:"value"`
	ImageType ImageType `json:"image_type"`
}

// AppFile is a file uploaded by the application (PutFile)
type AppFile struct {
	FileName           string `json:"file_name"`
	FileType           string `json:"file_type,omitempty"`
	IsPersistent       bool   `json:"is_persistent"`
	IsDownloadComplete bool   `json:"is_download_complete"`
}

// SubMenu is a top-level menu entry owning commands
type SubMenu struct {
	MenuID   uint32  `json:"menu_id"`
	MenuName string  `json:"menu_name"`
	Position *uint32 `json:"position,omitempty"`
}

// MenuParams places a command in the UI menu
type MenuParams struct {
	ParentID uint32  `json:"parent_id,omitempty"`
	Position *uint32 `json:"position,omitempty"`
	MenuName string  `json:"menu_name"`
}

// Command is an AddCommand entry with UI and/or VR representation
type Command struct {
	CmdID      uint32      `json:"cmd_id"`
	MenuParams *MenuParams `json:"menu_params,omitempty"`
	VRCommands []string    `json:"vr_commands,omitempty"`
	CmdIcon    *Image      `json:"cmd_icon,omitempty"`
}

// Choice is one selectable entry of an interaction choice set
type Choice struct {
	ChoiceID   uint32   `json:"choice_id"`
	MenuName   string   `json:"menu_name"`
	VRCommands []string `json:"vr_commands,omitempty"`
	Image      *Image   `json:"image,omitempty"`
}

// ChoiceSet is a CreateInteractionChoiceSet entry
type ChoiceSet struct {
	ChoiceSetID uint32   `json:"interaction_choice_set_id"`
	GrammarID   uint32   `json:"grammar_id"`
	Choices     []Choice `json:"choices"`
}

// TTSChunk is a piece of spoken prompt
type TTSChunk struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// VRHelpItem is an entry of the voice recognition help list
type VRHelpItem struct {
	Text     string `json:"text"`
	Image    *Image `json:"image,omitempty"`
	Position uint32 `json:"position"`
}

// KeyboardProperties configures the on-screen keyboard
type KeyboardProperties struct {
	Language             string   `json:"language,omitempty"`
	KeyboardLayout       string   `json:"keyboard_layout,omitempty"`
	KeypressMode         string   `json:"keypress_mode,omitempty"`
	LimitedCharacterList []string `json:"limited_character_list,omitempty"`
	AutoCompleteText     string   `json:"auto_complete_text,omitempty"`
}

// GlobalProperties holds SetGlobalProperties state
type GlobalProperties struct {
	HelpPrompt         []TTSChunk          `json:"help_prompt,omitempty"`
	TimeoutPrompt      []TTSChunk          `json:"timeout_prompt,omitempty"`
	VRHelpTitle        string              `json:"vr_help_title,omitempty"`
	VRHelp             []VRHelpItem        `json:"vr_help,omitempty"`
	MenuTitle          string              `json:"menu_title,omitempty"`
	MenuIcon           *Image              `json:"menu_icon,omitempty"`
	KeyboardProperties *KeyboardProperties `json:"keyboard_properties,omitempty"`
}

// HasUIProperties reports whether a UI.SetGlobalProperties request is needed
func (g *GlobalProperties) HasUIProperties() bool {
	return g.VRHelpTitle != "" || len(g.VRHelp) > 0 || g.MenuTitle != "" ||
		g.MenuIcon != nil || g.KeyboardProperties != nil
}

// HasTTSProperties reports whether a TTS.SetGlobalProperties request is needed
func (g *GlobalProperties) HasTTSProperties() bool {
	return len(g.HelpPrompt) > 0 || len(g.TimeoutPrompt) > 0
}

// Subscriptions holds button, vehicle data and way point subscriptions
type Subscriptions struct {
	Buttons     []string `json:"buttons,omitempty"`
	VehicleData []string `json:"vehicle_data,omitempty"`
	WayPoints   bool     `json:"way_points,omitempty"`
}

// IsEmpty reports whether there is nothing to subscribe to
func (s Subscriptions) IsEmpty() bool {
	return len(s.Buttons) == 0 && len(s.VehicleData) == 0 && !s.WayPoints
}

// Content is the HMI-visible session content of an application
type Content struct {
	Files            []AppFile         `json:"files,omitempty"`
	SubMenus         []SubMenu         `json:"sub_menus,omitempty"`
	Commands         []Command         `json:"commands,omitempty"`
	ChoiceSets       []ChoiceSet       `json:"choice_sets,omitempty"`
	GlobalProperties *GlobalProperties `json:"global_properties,omitempty"`
	Subscriptions    Subscriptions     `json:"subscriptions"`
}

// IsEmpty reports whether no content would be replayed on resumption
func (c Content) IsEmpty() bool {
	return len(c.Files) == 0 && len(c.SubMenus) == 0 && len(c.Commands) == 0 &&
		len(c.ChoiceSets) == 0 && c.GlobalProperties == nil && c.Subscriptions.IsEmpty()
}

// Clone returns a deep copy so snapshots never alias live application state
func (c Content) Clone() Content {
	out := Content{
		Files: append([]AppFile(nil), c.Files...),
		Subscriptions: Subscriptions{
			Buttons:     append([]string(nil), c.Subscriptions.Buttons...),
			VehicleData: append([]string(nil), c.Subscriptions.VehicleData...),
			WayPoints:   c.Subscriptions.WayPoints,
		},
	}
	for _, m := range c.SubMenus {
		m.Position = cloneUint(m.Position)
		out.SubMenus = append(out.SubMenus, m)
	}
	for _, cmd := range c.Commands {
		if cmd.MenuParams != nil {
			mp := *cmd.MenuParams
			mp.Position = cloneUint(mp.Position)
			cmd.MenuParams = &mp
		}
		cmd.VRCommands = append([]string(nil), cmd.VRCommands...)
		cmd.CmdIcon = cloneImage(cmd.CmdIcon)
		out.Commands = append(out.Commands, cmd)
	}
	if len(c.ChoiceSets) > 0 {
		out.ChoiceSets = make([]ChoiceSet, 0, len(c.ChoiceSets))
		for _, cs := range c.ChoiceSets {
			var choices []Choice
			for _, ch := range cs.Choices {
				ch.VRCommands = append([]string(nil), ch.VRCommands...)
				ch.Image = cloneImage(ch.Image)
				choices = append(choices, ch)
			}
			cs.Choices = choices
			out.ChoiceSets = append(out.ChoiceSets, cs)
		}
	}
	if c.GlobalProperties != nil {
		gp := *c.GlobalProperties
		gp.HelpPrompt = append([]TTSChunk(nil), gp.HelpPrompt...)
		gp.TimeoutPrompt = append([]TTSChunk(nil), gp.TimeoutPrompt...)
		gp.VRHelp = nil
		for _, item := range c.GlobalProperties.VRHelp {
			item.Image = cloneImage(item.Image)
			gp.VRHelp = append(gp.VRHelp, item)
		}
		gp.MenuIcon = cloneImage(gp.MenuIcon)
		if gp.KeyboardProperties != nil {
			kp := *gp.KeyboardProperties
			kp.LimitedCharacterList = append([]string(nil), kp.LimitedCharacterList...)
			gp.KeyboardProperties = &kp
		}
		out.GlobalProperties = &gp
	}
	return out
}

func cloneImage(img *Image) *Image {
	if img == nil {
		return nil
	}
	c := *img
	return &c
}

func cloneUint(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
