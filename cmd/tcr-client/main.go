package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NP-Dat/tcr-arena/internal/client"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "Server websocket endpoint")
	userID := flag.String("user", "", "User id to play as")
	username := flag.String("name", "", "Display name (defaults to the user id)")
	logLevel := flag.String("logLevel", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	initLogging(*logLevel)

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "a -user id is required")
		os.Exit(2)
	}
	if *username == "" {
		*username = *userID
	}

	logger.Client.Info("Text Clash Royale Client starting")

	c := client.NewClient(*serverURL, *userID, *username)
	c.SetupDefaultHandlers()

	fmt.Printf("Connecting to server at %s...\n", *serverURL)
	if err := c.Connect(); err != nil {
		logger.Client.Fatal("Failed to connect to server: %v", err)
	}
	fmt.Println("Connected to server! Type help for commands.")

	go cliLoop(c)

	c.WaitForDisconnect()
	fmt.Println("Disconnected from server.")
	logger.Client.Info("Client disconnected")
}

// cliLoop runs the command line interface loop
func cliLoop(c *client.Client) {
	reader := bufio.NewReader(os.Stdin)

	for c.IsConnected() {
		fmt.Print("> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			logger.Client.Error("Error reading input: %v", err)
			_ = c.Disconnect()
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Handle special debug command for changing log level dynamically
		if strings.HasPrefix(input, "debug loglevel ") {
			if parts := strings.Fields(input); len(parts) == 3 {
				setLogLevel(parts[2])
				continue
			}
		}

		if err := c.ParseCommand(input); err != nil {
			logger.Client.Warn("Command failed: %v", err)
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// initLogging initializes the logging system
func initLogging(logLevelStr string) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	logsDir := filepath.Join(homeDir, ".tcr", "logs")
	if err := logger.InitializeFileLogging(logsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize file logging: %v\n", err)
	} else {
		// Keep the prompt readable; everything still goes to the log file.
		for _, l := range []*logger.Logger{logger.Client, logger.Network} {
			l.SetConsole(false)
		}
	}

	setLogLevel(logLevelStr)
}

// setLogLevel dynamically changes the log level
func setLogLevel(levelStr string) {
	level, ok := logger.ParseLevel(levelStr)
	if !ok {
		fmt.Printf("Unknown log level: %s, using INFO\n", levelStr)
	} else {
		fmt.Printf("Log level set to %s\n", level)
	}
	logger.SetGlobalLogLevel(level)
}
