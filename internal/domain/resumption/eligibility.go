package resumption

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// CheckApplicationHash reports whether the application content is unchanged
// since its record was saved
func (c *Controller) CheckApplicationHash(app *types.App, hash string) bool {
	if app == nil {
		return false
	}
	r, ok := c.Record(app.PolicyAppID, app.DeviceID)
	if !ok {
		return false
	}
	return hash != "" && r.HashID == hash
}

// CheckIgnCycleRestrictions reports whether the HMI level of a record saved
// before an ignition-off may be restored: the controller must be inside its
// ignition-on window (CheckDelayAfterIgnOn) and the application must have
// been connected when ignition went off. It does not compare the cycle count
// with the configured limit; checkEligibility does that before any restore.
// Records from the current ignition cycle never reach this check.
func (c *Controller) CheckIgnCycleRestrictions(r *types.Record) bool {
	if !c.CheckDelayAfterIgnOn() {
		return false
	}
	return c.DisconnectedJustBeforeIgnOff(r)
}

// DisconnectedJustBeforeIgnOff reports whether the application was connected
// at ignition-off, either flagged at suspend or saved within the configured
// window before the last ignition-off
func (c *Controller) DisconnectedJustBeforeIgnOff(r *types.Record) bool {
	if r.DisconnectedBeforeIgnOff {
		return true
	}
	c.mu.Lock()
	lastIgnOff := c.lastIgnOff
	c.mu.Unlock()
	if lastIgnOff.IsZero() {
		return false
	}
	diff := lastIgnOff.Sub(r.TimeStamp)
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.cfg.DelayBeforeIgnOff
}

// IsAppDataResumptionExpired reports whether the record is too old, measured
// in wall-clock time
func (c *Controller) IsAppDataResumptionExpired(r *types.Record) bool {
	if c.cfg.DataAgeLimit <= 0 {
		return false
	}
	return c.clock.Now().Sub(r.TimeStamp) > c.cfg.DataAgeLimit
}

// exceedsIgnitionCycles reports whether more ignition cycles elapsed than allowed
func (c *Controller) exceedsIgnitionCycles(r *types.Record) bool {
	return r.IgnitionCycles > c.cfg.IgnitionCycleLimit
}

// CheckDelayAfterIgnOn reports whether the controller started recently
// enough for a reconnect to be part of an ignition resume
func (c *Controller) CheckDelayAfterIgnOn() bool {
	return c.clock.Now().Sub(c.LaunchTime()) <= c.cfg.DelayAfterIgnOnLimit
}

// CheckAppRestrictions reports whether the saved HMI level may be applied:
// only FULL and LIMITED are restored, LIMITED only for audio applications,
// and the policy must allow the application and the level
func (c *Controller) CheckAppRestrictions(app *types.App, r *types.Record) bool {
	if !c.policy.IsAppAllowed(app.PolicyAppID) {
		return false
	}
	switch r.HMILevel {
	case types.HMILevelFull:
	case types.HMILevelLimited:
		if !app.IsAudioApp() {
			return false
		}
	default:
		return false
	}
	return c.policy.IsHMILevelAllowed(app.PolicyAppID, r.HMILevel)
}

// IsDeviceMacAddressEqual reports whether the record was saved from the same handset
func (c *Controller) IsDeviceMacAddressEqual(app *types.App, savedMAC string) bool {
	if savedMAC == "" || app.DeviceMAC == "" {
		return true
	}
	return strings.EqualFold(app.DeviceMAC, savedMAC)
}

// checkEligibility applies the gates that abort a resumption outright:
// policy, device MAC, data age and the ignition cycle limit, which is waived
// when the application was connected at ignition-off
func (c *Controller) checkEligibility(app *types.App, r *types.Record) (string, bool) {
	switch {
	case !c.policy.IsAppAllowed(app.PolicyAppID):
		return "policy denied", false
	case !c.IsDeviceMacAddressEqual(app, r.DeviceMAC):
		return "device mac mismatch", false
	case c.IsAppDataResumptionExpired(r):
		return "data expired", false
	case c.exceedsIgnitionCycles(r) && !c.DisconnectedJustBeforeIgnOff(r):
		return "ignition cycle limit exceeded", false
	}
	return "", true
}

// appFolder returns where the application's files are stored
func (c *Controller) appFolder(app *types.App) string {
	return filepath.Join(c.cfg.AppStorageFolder, app.PolicyAppID+"_"+app.DeviceID)
}

// storedFiles lists the files present in the application folder
func (c *Controller) storedFiles(app *types.App) map[string]bool {
	root := c.appFolder(app)
	files := make(map[string]bool)
	var mu sync.Mutex

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		mu.Lock()
		files[filepath.ToSlash(rel)] = true
		mu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to scan application folder", zap.String("folder", root), zap.Error(err))
	}
	return files
}

// CheckPersistenceFilesForResumption drops files and icons of content that
// are no longer on disk. It reports whether everything was present.
func (c *Controller) CheckPersistenceFilesForResumption(app *types.App, content *types.Content) bool {
	present := c.storedFiles(app)
	complete := true

	files := content.Files[:0]
	for _, f := range content.Files {
		if present[f.FileName] {
			files = append(files, f)
			continue
		}
		complete = false
		c.logger.Warn("saved file missing, not restored",
			zap.Uint32("app_id", app.ID),
			zap.String("file", f.FileName))
	}
	content.Files = files
	if len(content.Files) == 0 {
		content.Files = nil
	}

	check := func(img **types.Image) {
		if *img == nil {
			return
		}
		if !c.CheckIcons(app, *img) {
			complete = false
			*img = nil
		}
	}
	for i := range content.Commands {
		check(&content.Commands[i].CmdIcon)
	}
	for i := range content.ChoiceSets {
		for j := range content.ChoiceSets[i].Choices {
			check(&content.ChoiceSets[i].Choices[j].Image)
		}
	}
	if gp := content.GlobalProperties; gp != nil {
		check(&gp.MenuIcon)
		for i := range gp.VRHelp {
			check(&gp.VRHelp[i].Image)
		}
	}
	return complete
}

// CheckIcons reports whether a dynamic image still exists and is an image.
// Existing dynamic images are rewritten to their full path.
func (c *Controller) CheckIcons(app *types.App, img *types.Image) bool {
	if img.ImageType != types.ImageDynamic {
		return true
	}
	path := img.Value
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.appFolder(app), path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		c.logger.Warn("icon missing, not restored",
			zap.Uint32("app_id", app.ID),
			zap.String("icon", img.Value))
		return false
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		c.logger.Warn("icon is not an image, not restored",
			zap.Uint32("app_id", app.ID),
			zap.String("icon", img.Value),
			zap.String("mime", mtype.String()))
		return false
	}
	img.Value = path
	return true
}
