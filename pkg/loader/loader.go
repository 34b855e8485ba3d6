// Package loader reads offline referral-tree fixtures.
//
// A fixture stands in for the contract: it holds user records keyed by
// address, the direct links of every node and, optionally, ids whose lookups
// should fail. Two formats are accepted, chosen by file extension: YAML
// (.yaml, .yml) and JSON Lines (.jsonl, .ndjson).
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraitsura/refnet/pkg/model"
)

// Fixture is an in-memory copy of the on-chain tree.
type Fixture struct {
	Path    string
	Users   map[string]model.UserRecord // by lower-cased address
	Directs map[model.NodeID]model.DirectLinks
	Failing map[model.NodeID]bool

	// Skipped counts malformed JSONL lines that were ignored.
	Skipped int
}

// NewFixture returns an empty fixture.
func NewFixture() *Fixture {
	return &Fixture{
		Users:   make(map[string]model.UserRecord),
		Directs: make(map[model.NodeID]model.DirectLinks),
		Failing: make(map[model.NodeID]bool),
	}
}

// User looks up a record by address, ignoring case.
func (f *Fixture) User(address string) (model.UserRecord, bool) {
	rec, ok := f.Users[normalizeAddress(address)]
	return rec, ok
}

// AddUser stores rec under its address.
func (f *Fixture) AddUser(rec model.UserRecord) {
	f.Users[normalizeAddress(rec.Address)] = rec
}

// Links returns the direct links stored for id. Nodes without an entry have
// no children.
func (f *Fixture) Links(id model.NodeID) (model.DirectLinks, bool) {
	links, ok := f.Directs[id]
	return links, ok
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// fixtureUser is the on-disk user shape. Amounts are decimal ether strings.
type fixtureUser struct {
	Address             string       `json:"address" yaml:"address"`
	ID                  model.NodeID `json:"id" yaml:"id"`
	Upline              model.NodeID `json:"upline" yaml:"upline"`
	LeftCount           uint64       `json:"left_count" yaml:"left_count"`
	RightCount          uint64       `json:"right_count" yaml:"right_count"`
	SaveLeft            uint64       `json:"save_left" yaml:"save_left"`
	SaveRight           uint64       `json:"save_right" yaml:"save_right"`
	BalanceCount        uint64       `json:"balance_count" yaml:"balance_count"`
	SpecialBalanceCount uint64       `json:"special_balance_count" yaml:"special_balance_count"`
	Rewards             string       `json:"rewards" yaml:"rewards"`
	EntryPrice          string       `json:"entry_price" yaml:"entry_price"`
	Miner               bool         `json:"miner" yaml:"miner"`
}

func (u fixtureUser) record() (model.UserRecord, error) {
	if u.Address == "" {
		return model.UserRecord{}, fmt.Errorf("user %d has no address", u.ID)
	}
	rec := model.UserRecord{
		Address:             u.Address,
		ID:                  u.ID,
		UplineID:            u.Upline,
		LeftCount:           u.LeftCount,
		RightCount:          u.RightCount,
		SaveLeft:            u.SaveLeft,
		SaveRight:           u.SaveRight,
		BalanceCount:        u.BalanceCount,
		SpecialBalanceCount: u.SpecialBalanceCount,
		IsMiner:             u.Miner,
	}
	var err error
	if rec.TotalMinerRewards, err = parseAmount(u.Rewards); err != nil {
		return model.UserRecord{}, fmt.Errorf("user %s rewards: %w", u.Address, err)
	}
	if rec.EntryPrice, err = parseAmount(u.EntryPrice); err != nil {
		return model.UserRecord{}, fmt.Errorf("user %s entry price: %w", u.Address, err)
	}
	return rec, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return model.ParseEther(s)
}

type fixtureFile struct {
	Users   []fixtureUser                      `yaml:"users"`
	Directs map[model.NodeID]model.DirectLinks `yaml:"directs"`
	Failing []model.NodeID                     `yaml:"failing"`
}

// jsonLine is one JSONL record. Kind selects which fields apply:
// "user" uses the user fields, "directs" uses id/left/right and "failing"
// uses id only.
type jsonLine struct {
	Kind string `json:"kind"`
	fixtureUser
	Left  model.NodeID `json:"left"`
	Right model.NodeID `json:"right"`
}

// LoadFixture reads a fixture, picking the decoder from the file extension.
func LoadFixture(path string) (*Fixture, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no fixture found at %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var f *Fixture
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err = ParseYAML(data)
	case ".jsonl", ".ndjson":
		f, err = ParseJSONL(data)
	default:
		return nil, fmt.Errorf("unsupported fixture format %q (want .yaml, .yml or .jsonl)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// ParseYAML decodes a YAML fixture document.
func ParseYAML(data []byte) (*Fixture, error) {
	var doc fixtureFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	f := NewFixture()
	for _, u := range doc.Users {
		rec, err := u.record()
		if err != nil {
			return nil, err
		}
		f.AddUser(rec)
	}
	for id, links := range doc.Directs {
		if id.IsZero() {
			return nil, fmt.Errorf("directs entry for id 0")
		}
		f.Directs[id] = links
	}
	for _, id := range doc.Failing {
		f.Failing[id] = true
	}
	return f, nil
}

// ParseJSONL decodes a JSON Lines fixture. Malformed lines are skipped and
// counted in Fixture.Skipped.
func ParseJSONL(data []byte) (*Fixture, error) {
	f := NewFixture()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	const maxCapacity = 1024 * 1024 // 1MB per line
	scanner.Buffer(make([]byte, 0, 64*1024), maxCapacity)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var rec jsonLine
		if err := json.Unmarshal(line, &rec); err != nil {
			f.Skipped++
			continue
		}
		switch rec.Kind {
		case "user":
			user, err := rec.record()
			if err != nil {
				f.Skipped++
				continue
			}
			f.AddUser(user)
		case "directs":
			if rec.ID.IsZero() {
				f.Skipped++
				continue
			}
			f.Directs[rec.ID] = model.DirectLinks{LeftID: rec.Left, RightID: rec.Right}
		case "failing":
			f.Failing[rec.ID] = true
		default:
			f.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading fixture: %w", err)
	}
	return f, nil
}
