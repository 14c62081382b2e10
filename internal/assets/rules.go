package assets

import "regexp"

// Platform is the running system's identity as the rule engine sees it:
// an OS name/arch pair plus a free-form version string matched by regex.
type Platform struct {
	OSName    string
	OSArch    string
	OSVersion string
}

// FlagSet is the subset of LaunchConfig flags a features{} clause can gate
// on. Both fields default to false when the caller doesn't set them.
type FlagSet struct {
	IsDemoUser          bool
	HasCustomResolution bool
}

// clauseMatches reports whether every populated field of an OSClause
// matches the platform. An unset field is not evaluated.
func clauseMatches(c *OSClause, p Platform) (bool, error) {
	if c == nil {
		return true, nil
	}
	if c.Name != "" && c.Name != p.OSName {
		return false, nil
	}
	if c.Arch != "" && c.Arch != p.OSArch {
		return false, nil
	}
	if c.Version != "" {
		re, err := regexp.Compile(c.Version)
		if err != nil {
			return false, ErrRegexInvalid
		}
		if !re.MatchString(p.OSVersion) {
			return false, nil
		}
	}
	return true, nil
}

func featuresMatch(f *Features, flags FlagSet) bool {
	if f == nil {
		return true
	}
	if f.IsDemoUser != nil && *f.IsDemoUser != flags.IsDemoUser {
		return false
	}
	if f.HasCustomResolution != nil && *f.HasCustomResolution != flags.HasCustomResolution {
		return false
	}
	return true
}

// ruleMatches reports whether every populated clause of a rule matches the
// current platform and flags.
func ruleMatches(r Rule, p Platform, flags FlagSet) (bool, error) {
	osOK, err := clauseMatches(r.OS, p)
	if err != nil {
		return false, err
	}
	if !osOK {
		return false, nil
	}
	return featuresMatch(r.Features, flags), nil
}

// EvaluateRules applies a rules array against the current platform and
// flags: the decision defaults to excluded, each matching rule flips the
// decision to its action, and a matching disallow short-circuits to
// excluded. An entry with no rules at all is included.
func EvaluateRules(rules []Rule, p Platform, flags FlagSet) (bool, error) {
	if len(rules) == 0 {
		return true, nil
	}

	included := false
	for _, r := range rules {
		matched, err := ruleMatches(r, p, flags)
		if err != nil {
			return false, err
		}
		if !matched {
			continue
		}
		switch r.Action {
		case "disallow":
			return false, nil
		case "allow":
			included = true
		}
	}
	return included, nil
}

// ExpandArgValue returns the literal strings an ArgValue contributes under
// the given platform and flags, or nil if its rules exclude it.
func ExpandArgValue(a ArgValue, p Platform, flags FlagSet) ([]string, error) {
	if a.IsPlain {
		return []string{a.Literal}, nil
	}
	ok, err := EvaluateRules(a.Rules, p, flags)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return a.Value, nil
}

// CurrentPlatform reports the running system's rule-engine identity. The
// OS version string is left to the caller (populating it requires a
// platform-specific syscall the rule engine itself has no business making).
func CurrentPlatform(osName, osArch, osVersion string) Platform {
	return Platform{OSName: osName, OSArch: osArch, OSVersion: osVersion}
}
