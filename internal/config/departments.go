package config

import (
	"fmt"
	"os"

	"slotcal/internal/models"

	yamlv2 "gopkg.in/yaml.v2"
)

type departmentsFile struct {
	Departments []models.Department `yaml:"departments"`
}

// LoadDepartments reads the department legend from a YAML file. An empty path
// yields the built-in defaults.
func LoadDepartments(path string) ([]models.Department, error) {
	if path == "" {
		return models.DefaultDepartments, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read departments file: %w", err)
	}

	var file departmentsFile
	if err := yamlv2.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse departments file: %w", err)
	}
	if len(file.Departments) == 0 {
		return nil, fmt.Errorf("departments file %s lists no departments", path)
	}

	for _, d := range file.Departments {
		if d.Name == "" {
			return nil, fmt.Errorf("departments file %s has an entry without a name", path)
		}
	}
	return file.Departments, nil
}
