package scan

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/remote"
)

// cmsSignature lists the file indicators expected for one CMS.
// Confidence is matched/len(indicators), capped at 1.0.
type cmsSignature struct {
	Type       model.CMSType
	Indicators []string
	ConfigFile string
}

var cmsSignatures = []cmsSignature{
	{
		Type:       model.CMSWordPress,
		Indicators: []string{"wp-config.php", "wp-login.php", "wp-includes/version.php", "wp-content/themes", "wp-admin/admin.php"},
		ConfigFile: "wp-config.php",
	},
	{
		Type:       model.CMSJoomla,
		Indicators: []string{"configuration.php", "administrator/index.php", "libraries/joomla", "components/com_content"},
		ConfigFile: "configuration.php",
	},
	{
		Type:       model.CMSDrupal,
		Indicators: []string{"sites/default/settings.php", "core/lib/Drupal.php", "modules/system", "index.php"},
		ConfigFile: "sites/default/settings.php",
	},
	{
		Type:       model.CMSMagento,
		Indicators: []string{"app/etc/env.php", "bin/magento", "pub/static", "app/Mage.php"},
		ConfigFile: "app/etc/env.php",
	},
	{
		Type:       model.CMSPrestaShop,
		Indicators: []string{"config/settings.inc.php", "app/config/parameters.php", "classes/PrestaShopAutoload.php"},
		ConfigFile: "config/settings.inc.php",
	},
}

// minCMSConfidence is the threshold below which a match is ignored.
const minCMSConfidence = 0.4

// cmsDetector accumulates indicator matches while the tree is walked.
type cmsDetector struct {
	matched map[model.CMSType]map[string]bool
}

func newCMSDetector() *cmsDetector {
	return &cmsDetector{matched: make(map[model.CMSType]map[string]bool)}
}

// Observe tests one visited path (relative to the scan root) against
// every signature.
func (d *cmsDetector) Observe(rel string) {
	rel = strings.TrimPrefix(rel, "/")
	for _, sig := range cmsSignatures {
		for _, ind := range sig.Indicators {
			if rel == ind || strings.HasPrefix(rel, ind+"/") || strings.HasSuffix(rel, "/"+ind) {
				if d.matched[sig.Type] == nil {
					d.matched[sig.Type] = make(map[string]bool)
				}
				d.matched[sig.Type][ind] = true
			}
		}
	}
}

// Result picks the CMS with the highest confidence above the threshold.
// When a winner exists its config file is read through the client and
// parsed for database parameters; parse failure only omits the
// database section.
func (d *cmsDetector) Result(ctx context.Context, client remote.Client, root string) model.CMSDetection {
	res := model.CMSDetection{Type: model.CMSNone}
	var winner *cmsSignature
	for i := range cmsSignatures {
		sig := &cmsSignatures[i]
		hits := d.matched[sig.Type]
		if len(hits) == 0 {
			continue
		}
		conf := float64(len(hits)) / float64(len(sig.Indicators))
		if conf > 1.0 {
			conf = 1.0
		}
		if conf >= minCMSConfidence && conf > res.Confidence {
			res.Confidence = conf
			winner = sig
		}
	}
	if winner == nil {
		res.Confidence = 0
		return res
	}

	res.Detected = true
	res.Type = winner.Type
	for ind := range d.matched[winner.Type] {
		res.MatchedIndicators = append(res.MatchedIndicators, ind)
	}
	sort.Strings(res.MatchedIndicators)

	cfgPath := strings.TrimSuffix(root, "/") + "/" + winner.ConfigFile
	if data, err := client.Read(ctx, cfgPath); err == nil {
		res.Database = parseDatabaseConfig(winner.Type, string(data))
	}
	return res
}

var (
	phpDefineRe = regexp.MustCompile(`define\(\s*['"]([A-Z_]+)['"]\s*,\s*['"]([^'"]*)['"]\s*\)`)
	phpPrefixRe = regexp.MustCompile(`\$table_prefix\s*=\s*['"]([^'"]*)['"]`)
)

// parseDatabaseConfig extracts connection parameters from a CMS config
// file. Only WordPress-style define() blocks are parsed today; other
// CMS formats return nil and the detection is still reported.
func parseDatabaseConfig(cms model.CMSType, content string) *model.DatabaseConfig {
	if cms != model.CMSWordPress {
		return nil
	}
	db := &model.DatabaseConfig{}
	for _, m := range phpDefineRe.FindAllStringSubmatch(content, -1) {
		switch m[1] {
		case "DB_HOST":
			db.Host = m[2]
		case "DB_NAME":
			db.Name = m[2]
		case "DB_USER":
			db.User = m[2]
		}
	}
	if m := phpPrefixRe.FindStringSubmatch(content); m != nil {
		db.TablePrefix = m[1]
	}
	if db.Host == "" && db.Name == "" && db.User == "" {
		return nil
	}
	return db
}
