// Package settings persists the claimant identity, report defaults and the
// running report counter so they survive a restart.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.etcd.io/bbolt"
)

const bucketName = "settings"

// Keys under which each field is stored
const (
	KeyClaimantName  = "claimant_name"
	KeyClaimantEmail = "claimant_email"
	KeyBankName      = "bank_name"
	KeyIBAN          = "iban"
	KeySWIFT         = "swift"
	KeyAccountNumber = "account_number"
	KeyProject       = "project"
	KeyDestination   = "destination"
	KeyPurpose       = "purpose"
	KeyKnownProjects = "known_projects"
	KeyReportCounter = "report_counter"
)

// ErrUnknownKey is returned for keys the repository does not manage
var ErrUnknownKey = errors.New("unknown settings key")

var knownKeys = map[string]bool{
	KeyClaimantName:  true,
	KeyClaimantEmail: true,
	KeyBankName:      true,
	KeyIBAN:          true,
	KeySWIFT:         true,
	KeyAccountNumber: true,
	KeyProject:       true,
	KeyDestination:   true,
	KeyPurpose:       true,
	KeyKnownProjects: true,
	KeyReportCounter: true,
}

// Settings holds the persisted user defaults
type Settings struct {
	ClaimantName  string   `json:"claimant_name"`
	ClaimantEmail string   `json:"claimant_email"`
	BankName      string   `json:"bank_name"`
	IBAN          string   `json:"iban"`
	SWIFT         string   `json:"swift"`
	AccountNumber string   `json:"account_number"`
	Project       string   `json:"project"`
	Destination   string   `json:"destination"`
	Purpose       string   `json:"purpose"`
	KnownProjects []string `json:"known_projects"`
	ReportCounter int      `json:"report_counter"`
}

// Defaults returns the settings of a fresh installation
func Defaults() *Settings {
	return &Settings{
		KnownProjects: []string{},
		ReportCounter: 1,
	}
}

// Normalize trims text fields, drops blank or repeated project names and
// keeps the counter at one or above.
func (s *Settings) Normalize() {
	for _, f := range []*string{&s.ClaimantName, &s.ClaimantEmail, &s.BankName, &s.IBAN, &s.SWIFT, &s.AccountNumber, &s.Project, &s.Destination, &s.Purpose} {
		*f = strings.TrimSpace(*f)
	}
	seen := make(map[string]bool, len(s.KnownProjects))
	projects := make([]string, 0, len(s.KnownProjects))
	for _, p := range s.KnownProjects {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		projects = append(projects, p)
	}
	s.KnownProjects = projects
	if s.ReportCounter < 1 {
		s.ReportCounter = 1
	}
}

// RememberProject adds the current project to the known list
func (s *Settings) RememberProject() {
	if s.Project == "" {
		return
	}
	s.KnownProjects = append(s.KnownProjects, s.Project)
	s.Normalize()
}

func (s *Settings) values() (map[string]string, error) {
	projects, err := json.Marshal(s.KnownProjects)
	if err != nil {
		return nil, fmt.Errorf("marshaling known projects: %w", err)
	}
	return map[string]string{
		KeyClaimantName:  s.ClaimantName,
		KeyClaimantEmail: s.ClaimantEmail,
		KeyBankName:      s.BankName,
		KeyIBAN:          s.IBAN,
		KeySWIFT:         s.SWIFT,
		KeyAccountNumber: s.AccountNumber,
		KeyProject:       s.Project,
		KeyDestination:   s.Destination,
		KeyPurpose:       s.Purpose,
		KeyKnownProjects: string(projects),
		KeyReportCounter: strconv.Itoa(s.ReportCounter),
	}, nil
}

func (s *Settings) apply(key, value string) error {
	switch key {
	case KeyClaimantName:
		s.ClaimantName = value
	case KeyClaimantEmail:
		s.ClaimantEmail = value
	case KeyBankName:
		s.BankName = value
	case KeyIBAN:
		s.IBAN = value
	case KeySWIFT:
		s.SWIFT = value
	case KeyAccountNumber:
		s.AccountNumber = value
	case KeyProject:
		s.Project = value
	case KeyDestination:
		s.Destination = value
	case KeyPurpose:
		s.Purpose = value
	case KeyKnownProjects:
		var projects []string
		if err := json.Unmarshal([]byte(value), &projects); err != nil {
			return fmt.Errorf("parsing known projects: %w", err)
		}
		s.KnownProjects = projects
	case KeyReportCounter:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parsing report counter: %w", err)
		}
		s.ReportCounter = n
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// Repository loads and stores settings
type Repository interface {
	// Get returns the raw value for key, or "" when it was never set
	Get(key string) (string, error)

	// Set stores the raw value for key
	Set(key, value string) error

	// Load returns every setting, with defaults for missing keys
	Load() (*Settings, error)

	// Save stores every setting
	Save(s *Settings) error
}

// BoltRepository stores settings as key/value pairs in a bbolt bucket
type BoltRepository struct {
	db *bbolt.DB
}

// NewBoltRepository creates the settings bucket in db if needed
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating settings bucket: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

// Get returns the raw value for key
func (r *BoltRepository) Get(key string) (string, error) {
	if !knownKeys[key] {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	var value string
	err := r.db.View(func(tx *bbolt.Tx) error {
		value = string(tx.Bucket([]byte(bucketName)).Get([]byte(key)))
		return nil
	})
	return value, err
}

// Set stores the raw value for key after checking it parses
func (r *BoltRepository) Set(key, value string) error {
	if !knownKeys[key] {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := Defaults().apply(key, value); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(value))
	})
}

// Load reads every stored key over the defaults
func (r *BoltRepository) Load() (*Settings, error) {
	s := Defaults()
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			if !knownKeys[string(k)] {
				return nil
			}
			return s.apply(string(k), string(v))
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Save writes every field in a single transaction
func (r *BoltRepository) Save(s *Settings) error {
	s.Normalize()
	values, err := s.values()
	if err != nil {
		return err
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for k, v := range values {
			if err := bucket.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
