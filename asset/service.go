package asset

import (
	"errors"
	"fmt"
	"log"

	"github.com/lixenwraith/voxpool/graph"
)

// File names one sample to load at startup
type File struct {
	Ref  graph.SampleRef
	Path string
}

// Service loads the configured sample files into a bank
type Service struct {
	bank  *Bank
	files []File
}

// NewService creates the asset service over bank
func NewService(bank *Bank, files []File) *Service {
	return &Service{bank: bank, files: files}
}

// Name implements service.Service
func (s *Service) Name() string {
	return "assets"
}

// Dependencies implements service.Service
func (s *Service) Dependencies() []string {
	return nil
}

// Init implements service.Service
// Every file is attempted; failures are joined into one error
func (s *Service) Init(args ...any) error {
	var errs []error
	for _, f := range s.files {
		if err := s.bank.LoadFile(f.Ref, f.Path); err != nil {
			errs = append(errs, fmt.Errorf("sample %s: %w", f.Ref, err))
		}
	}
	return errors.Join(errs...)
}

// Start implements service.Service
func (s *Service) Start() error {
	log.Printf("asset: %d samples ready", s.bank.Len())
	return nil
}

// Stop implements service.Service
func (s *Service) Stop() error {
	return nil
}

// Bank returns the sample bank
func (s *Service) Bank() *Bank {
	return s.bank
}
