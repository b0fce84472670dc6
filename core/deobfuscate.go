package core

import (
	"context"
	"encoding/json"
	"fmt"
	utils "geekedapi/utils"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// StaticConstants, when set, short-circuits the deobfuscation fetch.
// Used by tests and by deployments that pin known-good constants.
var StaticConstants *Constants

// bootstrapCaptchaID is any public demo captcha_id; /load only needs
// one to reveal the current static_path of the widget script.
const bootstrapCaptchaID = "588a5218557e1eadf33d682a6958c31b"

var ScriptBase = "https://static.geevisit.com"

var (
	tablePattern    = regexp.MustCompile(`decodeURI\("([^"]+)"\)`)
	xorKeyPattern   = regexp.MustCompile(`\}\}\}\("([^"]+)"\)\}`)
	obfCallPattern  = regexp.MustCompile(`(_.{4})\((\d+?)\)`)
	aboPattern      = regexp.MustCompile(`\['_lib']=(\{[^}]+\}),`)
	mappingPattern  = regexp.MustCompile(`\['_abo']=(.+?)\}\(\)`)
	devicePattern   = regexp.MustCompile(`\['options']\['deviceId']='([^']*)'`)
	bareKeyPattern  = regexp.MustCompile(`([{,])\s*([A-Za-z0-9_]+)\s*:`)
	staticVerOffset = 3
)

// cachedConstants is the on-disk cache record, keyed by script version
// so a provider-side script update invalidates it.
type cachedConstants struct {
	Version   string            `json:"version"`
	FetchedAt time.Time         `json:"fetched_at"`
	Mapping   string            `json:"mapping"`
	Abo       map[string]string `json:"abo"`
	DeviceID  string            `json:"device_id"`
}

func (c cachedConstants) constants() *Constants {
	return &Constants{
		Version:  c.Version,
		Mapping:  c.Mapping,
		Abo:      c.Abo,
		DeviceID: c.DeviceID,
	}
}

// Deobfuscator extracts the payload-shaping constants (mapping, abo,
// device_id) from the provider's obfuscated gcaptcha4.js. The script
// hides its string literals in an XOR-encrypted lookup table; once the
// table is recovered every `_xxxx(N)` call is replaced by its literal
// and the constants fall out with plain regexes.
type Deobfuscator struct {
	cachePath string
	client    tls_client.HttpClient
}

func NewDeobfuscator() (*Deobfuscator, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = ".cache"
	}

	client, err := utils.NewChallengeClient(utils.Direct, ClientTimeoutSeconds)
	if err != nil {
		return nil, WrapError(KindNetworkError, "failed to build tls client", err)
	}

	return &Deobfuscator{
		cachePath: filepath.Join(cacheDir, "geekedapi", "constants.json"),
		client:    client,
	}, nil
}

// GetConstants returns usable constants, from the pinned override, the
// version-checked disk cache, or a fresh fetch, in that order.
func (d *Deobfuscator) GetConstants(ctx context.Context) (*Constants, error) {
	if StaticConstants != nil {
		return StaticConstants, nil
	}

	if cached, err := d.loadCache(); err == nil && cached != nil {
		current, err := d.fetchCurrentVersion(ctx)
		if err != nil {
			// Version check is best effort; stale constants beat none.
			log.Printf("version check failed, using cached constants: %v", err)
			return cached.constants(), nil
		}
		if cached.Version == current {
			return cached.constants(), nil
		}
		log.Printf("gcaptcha4.js updated %s -> %s, refreshing constants", cached.Version, current)
	}

	fresh, err := d.fetchAndDeobfuscate(ctx)
	if err != nil {
		return nil, err
	}
	cache := &cachedConstants{
		Version:   fresh.Version,
		FetchedAt: time.Now().UTC(),
		Mapping:   fresh.Mapping,
		Abo:       fresh.Abo,
		DeviceID:  fresh.DeviceID,
	}
	if err := d.saveCache(cache); err != nil {
		log.Printf("failed to persist constants cache: %v", err)
	}
	return fresh, nil
}

func (d *Deobfuscator) loadCache() (*cachedConstants, error) {
	contents, err := os.ReadFile(d.cachePath)
	if err != nil {
		return nil, err
	}
	var cached cachedConstants
	if err := json.Unmarshal(contents, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (d *Deobfuscator) saveCache(c *cachedConstants) error {
	if err := os.MkdirAll(filepath.Dir(d.cachePath), 0o755); err != nil {
		return err
	}
	contents, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.cachePath, contents, 0o644)
}

func (d *Deobfuscator) fetch(ctx context.Context, reqURL string) (string, error) {
	req, err := fhttp.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", WrapError(KindNetworkError, "failed to create request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", WrapError(KindNetworkError, "proxy error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fhttp.StatusOK {
		return "", NewError(KindNetworkError, fmt.Sprintf("request returned status code %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(KindNetworkError, "failed to read response body", err)
	}
	return string(body), nil
}

// fetchStaticPath asks /load where the current widget script lives.
func (d *Deobfuscator) fetchStaticPath(ctx context.Context) (string, error) {
	queryParams := url.Values{
		"callback":    {fmt.Sprintf("geetest_%d", time.Now().UnixMilli())},
		"captcha_id":  {bootstrapCaptchaID},
		"challenge":   {uuid.New().String()},
		"client_type": {"web"},
		"lang":        {"en"},
	}

	body, err := d.fetch(ctx, ApiBase+"/load?"+queryParams.Encode())
	if err != nil {
		return "", err
	}

	start := strings.Index(body, "(")
	end := strings.LastIndex(body, ")")
	if start < 0 || end <= start {
		return "", NewError(KindProviderRejected, "invalid jsonp response format")
	}

	var response struct {
		Data struct {
			StaticPath string `json:"static_path"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(body[start+1:end]), &response); err != nil {
		return "", WrapError(KindProviderRejected, "malformed load response", err)
	}
	if response.Data.StaticPath == "" {
		return "", NewError(KindProviderRejected, "missing static_path in load response")
	}
	return response.Data.StaticPath, nil
}

func versionFromPath(staticPath string) (string, error) {
	parts := strings.Split(staticPath, "/")
	if len(parts) <= staticVerOffset {
		return "", NewError(KindProviderRejected, fmt.Sprintf("cannot extract version from path %q", staticPath))
	}
	return parts[staticVerOffset], nil
}

func (d *Deobfuscator) fetchCurrentVersion(ctx context.Context) (string, error) {
	staticPath, err := d.fetchStaticPath(ctx)
	if err != nil {
		return "", err
	}
	return versionFromPath(staticPath)
}

func (d *Deobfuscator) fetchAndDeobfuscate(ctx context.Context) (*Constants, error) {
	staticPath, err := d.fetchStaticPath(ctx)
	if err != nil {
		return nil, err
	}
	version, err := versionFromPath(staticPath)
	if err != nil {
		return nil, err
	}

	log.Printf("fetching gcaptcha4.js version %s", version)

	script, err := d.fetch(ctx, ScriptBase+staticPath+"/js/gcaptcha4.js")
	if err != nil {
		return nil, err
	}

	return DeobfuscateScript(script, version)
}

// DeobfuscateScript recovers the constants from raw script text.
// Split out from the fetch path so it can run against fixture scripts.
func DeobfuscateScript(script, version string) (*Constants, error) {
	encryptedTable, xorKey, err := extractTableAndKey(script)
	if err != nil {
		return nil, err
	}

	table := decryptTable(encryptedTable, xorKey)
	deobfuscated := replaceObfuscatedCalls(script, table)

	abo, err := extractAbo(deobfuscated)
	if err != nil {
		return nil, err
	}
	mapping, err := extractMapping(deobfuscated)
	if err != nil {
		return nil, err
	}

	return &Constants{
		Version:  version,
		Mapping:  mapping,
		Abo:      abo,
		DeviceID: extractDeviceID(deobfuscated),
	}, nil
}

// extractTableAndKey pulls the encrypted string table and its XOR key
// out of the script. The table literal is wrapped in decodeURI, so it
// is evaluated with the same semantics the browser would use rather
// than approximated with a URL unescape.
func extractTableAndKey(script string) (string, string, error) {
	tableMatch := tablePattern.FindStringSubmatch(script)
	if tableMatch == nil {
		return "", "", NewError(KindEncodingError, "failed to extract encrypted table")
	}

	vm := goja.New()
	if err := vm.Set("raw", tableMatch[1]); err != nil {
		return "", "", WrapError(KindEncodingError, "js vm setup failed", err)
	}
	decoded, err := vm.RunString("decodeURI(raw)")
	if err != nil {
		return "", "", WrapError(KindEncodingError, "decodeURI evaluation failed", err)
	}

	keyMatch := xorKeyPattern.FindStringSubmatch(script)
	if keyMatch == nil {
		return "", "", NewError(KindEncodingError, "failed to extract xor key")
	}

	return decoded.String(), keyMatch[1], nil
}

func decryptTable(encrypted, key string) []string {
	keyBytes := []byte(key)
	runes := []rune(encrypted)
	decrypted := make([]rune, len(runes))
	for i, r := range runes {
		decrypted[i] = rune(byte(r) ^ keyBytes[i%len(keyBytes)])
	}
	return strings.Split(string(decrypted), "^")
}

func replaceObfuscatedCalls(script string, table []string) string {
	return obfCallPattern.ReplaceAllStringFunc(script, func(call string) string {
		m := obfCallPattern.FindStringSubmatch(call)
		index, err := strconv.Atoi(m[2])
		if err != nil || index < 0 || index >= len(table) {
			return call
		}
		return "'" + table[index] + "'"
	})
}

func extractAbo(script string) (map[string]string, error) {
	m := aboPattern.FindStringSubmatch(script)
	if m == nil {
		return nil, NewError(KindEncodingError, "failed to extract abo constant")
	}

	// The literal uses single quotes and bare keys; normalize to JSON.
	cleaned := strings.ReplaceAll(m[1], "'", `"`)
	jsonStr := bareKeyPattern.ReplaceAllString(cleaned, `$1"$2":`)

	abo := map[string]string{}
	if err := json.Unmarshal([]byte(jsonStr), &abo); err != nil {
		return nil, WrapError(KindEncodingError, "failed to parse abo as json", err)
	}
	return abo, nil
}

func extractMapping(script string) (string, error) {
	m := mappingPattern.FindStringSubmatch(script)
	if m == nil {
		return "", NewError(KindEncodingError, "failed to extract mapping constant")
	}
	return m[1], nil
}

func extractDeviceID(script string) string {
	if m := devicePattern.FindStringSubmatch(script); m != nil {
		return m[1]
	}
	return ""
}
