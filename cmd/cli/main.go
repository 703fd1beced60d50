package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(args)
	case "analyze":
		err = analyzeImage(args)
	case "health":
		err = health()
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: visiongate auth <login|logout|who|me>")
		return nil
	}

	switch args[0] {
	case "login":
		return loginUser(args[1:])
	case "logout":
		return logoutUser()
	case "who":
		whoAmI()
		return nil
	case "me":
		return me()
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

// apiResult is the envelope every API response shares
type apiResult map[string]any

func (r apiResult) message() string {
	if m, ok := r["message"].(string); ok {
		return m
	}
	return "unexpected response"
}

func do(req *http.Request) (int, apiResult, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var result apiResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, result, nil
}

// Auth commands
func loginUser(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password (or VISIONGATE_PASSWORD)")
	fs.Parse(args)

	if *password == "" {
		*password = os.Getenv("VISIONGATE_PASSWORD")
	}
	if *username == "" || *password == "" {
		fs.PrintDefaults()
		return errors.New("username and password are required")
	}

	data, err := json.Marshal(map[string]string{"username": *username, "password": *password})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, apiURL()+"/auth/login", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	status, result, err := do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("login failed (%d): %s", status, result.message())
	}
	token, ok := result["token"].(string)
	if !ok || token == "" {
		return errors.New("server did not return a token; set TOKEN_DELIVERY to body or both")
	}
	if err := saveToken(token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("✓ Logged in as: %s\n", *username)
	return nil
}

func logoutUser() error {
	if err := os.Remove(tokenFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Println("✓ Logged out")
	return nil
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	prefix := token
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", prefix)
}

func me() error {
	req, err := http.NewRequest(http.MethodGet, apiURL()+"/auth/me", nil)
	if err != nil {
		return err
	}
	addAuthHeader(req)

	status, result, err := do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("request failed (%d): %s", status, result.message())
	}
	user, _ := result["user"].(map[string]any)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, key := range []string{"id", "username", "isActive", "createdAt", "lastLoginAt"} {
		fmt.Fprintf(w, "%s\t%v\n", key, user[key])
	}
	return w.Flush()
}

// Analyze command
func analyzeImage(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: visiongate analyze <image-file>")
		return nil
	}
	path := args[0]

	body, contentType, err := imageForm(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, apiURL()+"/analyze", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	addAuthHeader(req)

	status, result, err := do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("analysis failed (%d): %s", status, result.message())
	}

	analysis, _ := result["analysis"].(map[string]any)
	fmt.Printf("✓ %v analyzed as %v (model %v, %vms)\n",
		result["filename"], result["image_id"], result["model_version"], result["processing_time_ms"])
	fmt.Printf("  total objects: %v  confidence: %v\n", analysis["total_objects"], analysis["confidence"])

	counts, _ := analysis["object_counts"].(map[string]any)
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tCOUNT")
	for _, label := range labels {
		fmt.Fprintf(w, "%s\t%v\n", label, counts[label])
	}
	return w.Flush()
}

func imageForm(path string) (io.Reader, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func health() error {
	base := strings.TrimSuffix(apiURL(), "/api")
	req, err := http.NewRequest(http.MethodGet, base+"/health", nil)
	if err != nil {
		return err
	}
	status, result, err := do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy (%d)", status)
	}
	fmt.Printf("✓ %v is %v (%v)\n", result["service"], result["status"], result["timestamp"])
	return nil
}

// Helper functions
func apiURL() string {
	if url := os.Getenv("VISIONGATE_API"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:3000/api"
}

func tokenDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".visiongate")
}

func tokenFile() string {
	return filepath.Join(tokenDir(), "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(tokenDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func addAuthHeader(req *http.Request) {
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`VisionGate CLI

Usage:
  visiongate <command> [options]

Commands:
  auth       Session management (login, logout, who, me)
  analyze    Upload an image for analysis
  health     Check gateway liveness
  help       Show this help message

Environment Variables:
  VISIONGATE_API        API endpoint (default: http://localhost:3000/api)
  VISIONGATE_PASSWORD   Password for auth login when -password is omitted

Examples:
  visiongate auth login -username alice -password secret
  visiongate auth me
  visiongate analyze ./dog.jpg
`)
}
