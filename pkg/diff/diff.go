// Package diff renders the difference between what a principal was granted
// by IAM and what it actually invoked in CloudTrail, in the four-way
// labelling CloudTracker has always used.
package diff

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/cloudtracker/cloudtracker/pkg/action"
	"github.com/cloudtracker/cloudtracker/pkg/backend"
	"github.com/cloudtracker/cloudtracker/pkg/catalog"
	"github.com/cloudtracker/cloudtracker/pkg/iam"
)

// Filters controls which labels PrintDiff emits.
type Filters struct {
	// ShowUsed, when true, suppresses GrantedNotInvoked and GrantedNotLogged:
	// only actions actually seen in CloudTrail are shown.
	ShowUsed bool
	// ShowBenign, when false, drops any action whose event name contains
	// ":list" or ":describe", regardless of label.
	ShowBenign bool
	// ShowUnknown, when false, suppresses GrantedNotLogged.
	ShowUnknown bool
	// UseColor enables ANSI coloring of output.
	UseColor bool
}

// label is the four-way classification of one action in a principal's diff.
type label int

const (
	usedAndAllowed label = iota
	invokedNotGranted
	grantedNotInvoked
	grantedNotLogged
)

// PrintDiff writes, to w, every action in invoked or granted, sorted
// ascending, prefixed and colored per its label, subject to filters.
func PrintDiff(w io.Writer, invoked backend.InvokedSet, granted iam.GrantedSet, cat *catalog.Catalog, filters Filters) {
	labelled := make(map[action.Action]label, len(invoked)+len(granted))

	for a := range invoked {
		iamName := action.CloudTrailToIAM(a)
		if action.NoIAM[iamName] {
			continue
		}
		if granted[iamName] {
			labelled[iamName] = usedAndAllowed
		} else {
			labelled[iamName] = invokedNotGranted
		}
	}

	for a := range granted {
		if _, ok := labelled[a]; ok {
			continue
		}
		if cat.CloudTrailLogged(action.IAMToCloudTrail(a)) {
			labelled[a] = grantedNotInvoked
		} else {
			labelled[a] = grantedNotLogged
		}
	}

	names := make([]string, 0, len(labelled))
	for a := range labelled {
		names = append(names, string(a))
	}
	sort.Strings(names)

	for _, name := range names {
		emitLabelled(w, name, labelled[action.Action(name)], filters)
	}
}

func emitLabelled(w io.Writer, name string, l label, filters Filters) {
	if !filters.ShowBenign && isBenign(name) {
		return
	}

	switch l {
	case usedAndAllowed:
		printLine(w, "  "+name, "white", filters.UseColor)
	case invokedNotGranted:
		printLine(w, "+ "+name, "green", filters.UseColor)
	case grantedNotInvoked:
		if filters.ShowUsed {
			return
		}
		printLine(w, "- "+name, "red", filters.UseColor)
	case grantedNotLogged:
		if filters.ShowUsed {
			return
		}
		if !filters.ShowUnknown {
			return
		}
		printLine(w, "? "+name, "yellow", filters.UseColor)
	}
}

func isBenign(name string) bool {
	return strings.Contains(name, ":list") || strings.Contains(name, ":describe")
}

var colorFuncs = map[string]func(format string, a ...interface{}) string{
	"white":  color.WhiteString,
	"green":  color.GreenString,
	"red":    color.RedString,
	"yellow": color.YellowString,
}

func printLine(w io.Writer, text, colorName string, useColor bool) {
	if !useColor {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintln(w, colorFuncs[colorName]("%s", text))
}

// actorLabel is the two-way classification principal-list mode uses.
type actorLabel int

const (
	performedAndExists actorLabel = iota
	existsNotPerformed
)

// PrintActorDiff writes, to w, every principal in performed or existing,
// sorted ascending: principals that both exist and acted (white, no
// prefix), principals that exist but never acted (red, "- " prefix).
// Principals that acted but no longer exist are silently dropped.
func PrintActorDiff(w io.Writer, performed, existing map[string]bool, useColor bool) {
	labelled := make(map[string]actorLabel, len(existing))

	for name := range performed {
		if existing[name] {
			labelled[name] = performedAndExists
		}
		// performed-but-not-existing is intentionally dropped.
	}
	for name := range existing {
		if _, ok := labelled[name]; !ok {
			labelled[name] = existsNotPerformed
		}
	}

	names := make([]string, 0, len(labelled))
	for name := range labelled {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch labelled[name] {
		case performedAndExists:
			printLine(w, "  "+name, "white", useColor)
		case existsNotPerformed:
			printLine(w, "- "+name, "red", useColor)
		}
	}
}
