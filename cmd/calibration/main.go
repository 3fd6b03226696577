// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/sensor_pipeline/internal/app"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/sensors"
)

func main() {
	configPath := flag.String("config", "./sensor_pipeline.conf", "path to configuration file")
	reportDir := flag.String("report-dir", ".", "directory for the JSON calibration report")
	flag.Parse()

	log.Println("starting sensor-pipeline calibration wizard")
	log.Println("Note: stop the pipeline daemon first, the wizard needs the sensor to itself")

	s, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clk := clock.New()
	read, closeDev, err := sensors.OpenFrameReader(s, clk)
	if err != nil {
		log.Fatalf("failed to open sensor: %v", err)
	}
	defer closeDev()

	stdin := bufio.NewReader(os.Stdin)
	confirm := func(prompt string) error {
		fmt.Printf("\n>> %s\n   press ENTER when ready (or type q to abort): ", prompt)
		line, err := stdin.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "q" {
			return fmt.Errorf("aborted by operator")
		}
		return nil
	}

	wizard := app.NewCalibrator(read, clk, os.Stdout, confirm)
	result, err := wizard.Run()
	if err != nil {
		log.Fatalf("calibration failed: %v", err)
	}

	fmt.Printf("\ngyro bias       %8.2f %8.2f %8.2f (confidence %.0f%%)\n",
		result.GyroBias[0], result.GyroBias[1], result.GyroBias[2], result.GyroConfidence)
	fmt.Printf("accel scale     %8.5f %8.5f %8.5f (confidence %.0f%%)\n",
		result.AccelScale[0], result.AccelScale[1], result.AccelScale[2], result.AccelConfidence)
	fmt.Printf("mag bias        %8.2f %8.2f %8.2f (confidence %.0f%%)\n",
		result.MagBias[0], result.MagBias[1], result.MagBias[2], result.MagConfidence)

	fmt.Println("\npaste into the config file:")
	fmt.Println(result.Snippet())

	path, err := result.WriteReport(*reportDir)
	if err != nil {
		log.Fatalf("failed to write report: %v", err)
	}
	log.Printf("full report written to %s", path)
}
