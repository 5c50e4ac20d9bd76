package models

import (
	"fmt"
	"strconv"
	"strings"
)

// NVR is a parsed Name-Version-Release[:Epoch] build identifier
type NVR struct {
	Name    string
	Version string
	Release string
	Epoch   string
}

// splitNVREpoch separates the epoch from an E:N-V-R or N-V-R:E string
func splitNVREpoch(nvre string) (string, string, error) {
	if !strings.Contains(nvre, ":") {
		return nvre, "", nil
	}
	if strings.Count(nvre, ":") != 1 {
		return "", "", fmt.Errorf("invalid NVRE: %s", nvre)
	}

	idx := strings.LastIndex(nvre, ":")
	nvr, epoch := nvre[:idx], nvre[idx+1:]
	if strings.Contains(epoch, "-") {
		if !strings.Contains(nvr, "-") {
			// E:N-V-R
			nvr, epoch = epoch, nvr
		} else {
			// N-E:V-R, the epoch is extracted from the version later
			nvr, epoch = nvre, ""
		}
	}
	return nvr, epoch, nil
}

// ParseNVR splits N-V-R:E, E:N-V-R or N-E:V-R strings. Anything before the last "/" is ignored.
func ParseNVR(nvre string) (NVR, error) {
	if i := strings.LastIndex(nvre, "/"); i >= 0 {
		nvre = nvre[i+1:]
	}

	nvr, epoch, err := splitNVREpoch(nvre)
	if err != nil {
		return NVR{}, err
	}

	// rsplit("-", 2)
	last := strings.LastIndex(nvr, "-")
	if last <= 0 {
		return NVR{}, fmt.Errorf("invalid NVR: %s", nvr)
	}
	prev := strings.LastIndex(nvr[:last], "-")
	if prev <= 0 {
		return NVR{}, fmt.Errorf("invalid NVR: %s", nvr)
	}
	out := NVR{Name: nvr[:prev], Version: nvr[prev+1 : last], Release: nvr[last+1:]}

	if epoch == "" && strings.Contains(out.Version, ":") {
		parts := strings.SplitN(out.Version, ":", 2)
		epoch, out.Version = parts[0], parts[1]
	}
	if epoch != "" {
		if _, err := strconv.Atoi(epoch); err != nil {
			return NVR{}, fmt.Errorf("invalid epoch '%s' in '%s'", epoch, nvr)
		}
	}
	out.Epoch = epoch
	return out, nil
}
