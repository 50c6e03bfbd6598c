// Copyright 2016, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EE_API_URL        = "EE_API_URL"
	EE_PROJECT        = "EE_PROJECT"
	NDVI_ENGINE       = "NDVI_ENGINE"
	NDVI_OUTPUT_DIR   = "NDVI_OUTPUT_DIR"
	NDVI_DRIVE_FOLDER = "NDVI_DRIVE_FOLDER"
	NDVI_JOB_FILE     = "NDVI_JOB_FILE"
	NDVI_MODEL_FILE   = "NDVI_MODEL_FILE"
	LOG_LEVEL         = "LOG_LEVEL"
	LOG_FORMAT        = "LOG_FORMAT"
)

const (
	defaultEarthEngineURL = "https://earthengine.googleapis.com"
	defaultEngine         = "remote"
	defaultOutputDir      = "NDVI_Images"
	defaultModelFile      = "isolation_forest_model.json"
	defaultLogLevel       = "info"
)

// LoadEnvironment reads KEY=VALUE files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadEnvironment(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			present = append(present, file)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("loading environment files %v: %w", present, err)
	}
	return nil
}

// GetEarthEngineURL returns the EE_API_URL environment variable, or the
// public Earth Engine endpoint
func GetEarthEngineURL() string {
	if eeURL, ok := os.LookupEnv(EE_API_URL); ok && eeURL != "" {
		return eeURL
	}
	return defaultEarthEngineURL
}

// GetEarthEngineProject returns the Cloud project that owns export tasks
func GetEarthEngineProject() string {
	project, ok := os.LookupEnv(EE_PROJECT)
	if !ok {
		LogAlert(&BasicLogContext{}, "Did not get EE_PROJECT from the environment. The remote engine will not be available.")
	}
	return project
}

// GetEngine returns the configured engine name ("remote" or "local")
func GetEngine() string {
	return getEnvDefault(NDVI_ENGINE, defaultEngine)
}

// GetOutputDir returns the folder that local exports are written to
// and that anomaly detection reads from
func GetOutputDir() string {
	return getEnvDefault(NDVI_OUTPUT_DIR, defaultOutputDir)
}

// GetDriveFolder returns the Google Drive folder for remote exports; empty
// means the Drive root
func GetDriveFolder() string {
	return os.Getenv(NDVI_DRIVE_FOLDER)
}

// GetJobFile returns the path of an optional YAML job definition
func GetJobFile() string {
	return os.Getenv(NDVI_JOB_FILE)
}

// GetModelFile returns where the isolation forest is saved
func GetModelFile() string {
	return getEnvDefault(NDVI_MODEL_FILE, defaultModelFile)
}

// GetLogLevel returns the LOG_LEVEL environment variable or "info"
func GetLogLevel() string {
	return getEnvDefault(LOG_LEVEL, defaultLogLevel)
}

// GetLogFormat returns the LOG_FORMAT environment variable
func GetLogFormat() string {
	return os.Getenv(LOG_FORMAT)
}

func getEnvDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
