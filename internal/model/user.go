package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// UserProfile is a per-user preference profile, stored as one YAML file per
// user in the users directory.
type UserProfile struct {
	// Name is the username, taken from the filename rather than the file.
	Name string `yaml:"-"`

	Email    string `yaml:"email"`
	Schedule struct {
		Morning  int    `yaml:"morning"` // Local hour of the morning edition
		Evening  int    `yaml:"evening"` // Local hour of the evening edition
		Timezone string `yaml:"timezone"`
	} `yaml:"schedule"`
	Topics struct {
		Exclude        []string `yaml:"exclude"`
		Boost          []string `yaml:"boost"`
		BoostAustralia bool     `yaml:"boost_australia"`
		BoostNSW       bool     `yaml:"boost_nsw"`
	} `yaml:"topics"`
	Breaking struct {
		Enabled    bool     `yaml:"enabled"`
		Categories []string `yaml:"categories"`
	} `yaml:"breaking"`
	Editorial struct {
		Lens    string `yaml:"lens"`
		Tone    string `yaml:"tone"`
		Signoff string `yaml:"signoff"`
	} `yaml:"editorial"`
	Newsletter struct {
		KeyStoriesCount     int  `yaml:"key_stories_count"`
		QuickfireCount      int  `yaml:"quickfire_count"`
		IncludeSourceCounts bool `yaml:"include_source_counts"`
	} `yaml:"newsletter"`
}

// LoadUserProfile reads a user's profile from the users directory.
func LoadUserProfile(usersDir, username string) (*UserProfile, error) {
	path := filepath.Join(usersDir, username+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user profile: %w", err)
	}

	var profile UserProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse user profile %s: %w", path, err)
	}
	profile.Name = username

	return &profile, nil
}

// SaveUserProfile writes a user's profile back to the users directory.
func SaveUserProfile(usersDir, username string, profile *UserProfile) error {
	data, err := yaml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal user profile: %w", err)
	}

	path := filepath.Join(usersDir, username+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write user profile: %w", err)
	}

	return nil
}

// ListUsers returns the usernames with a profile in the users directory,
// sorted for stable iteration order.
func ListUsers(usersDir string) ([]string, error) {
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return nil, fmt.Errorf("read users directory: %w", err)
	}

	var users []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".example.yaml") {
			continue
		}
		users = append(users, strings.TrimSuffix(name, ".yaml"))
	}

	sort.Strings(users)
	return users, nil
}
