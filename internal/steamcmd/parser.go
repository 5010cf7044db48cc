package steamcmd

import (
	"regexp"
	"strconv"
	"strings"

	"steamfetch/internal/faults"
)

// Parser classifies raw SteamCMD output one line at a time. It is stateless
// between lines except for two carried values: the last reported byte total
// (later lines may omit it) and the running monotonic overall fraction.
// Unrecognized lines never produce an event and never fail.
type Parser struct {
	lastTotal   int64
	lastOverall float64
}

func NewParser() *Parser {
	return &Parser{}
}

var (
	updateStatePattern = regexp.MustCompile(`Update state \(0x[0-9a-fA-F]+\)\s+([a-z][a-z ]*?),?\s+progress:\s*(\d+(?:\.\d+)?)\s*\((\d+)\s*/\s*(\d+)`)
	percentPattern     = regexp.MustCompile(`progress:?\s*(\d+\.\d+)\s*%`)
	etaPattern         = regexp.MustCompile(`ETA:?\s*(\d+:\d+:\d+|\d+m\s*\d+s|\d+s)`)
)

// ParseLine returns the structured event for one output line, or ok=false
// when the line matches no recognized shape.
func (p *Parser) ParseLine(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{}, false
	}

	if match := updateStatePattern.FindStringSubmatch(trimmed); match != nil {
		return p.progressEvent(trimmed, match)
	}
	if match := percentPattern.FindStringSubmatch(trimmed); match != nil {
		percent, _ := strconv.ParseFloat(match[1], 64)
		event := Event{
			Kind:       EventProgress,
			Phase:      PhaseDownloading,
			Percent:    percent,
			BytesTotal: p.lastTotal,
			ETASeconds: parseETA(trimmed),
		}
		event.Overall = p.advanceOverall(PhaseDownloading, percent)
		return event, true
	}

	if strings.Contains(trimmed, "Success! App") && strings.Contains(trimmed, "fully installed") {
		p.lastOverall = 1
		return Event{Kind: EventSuccess, Percent: 100, Overall: 1}, true
	}

	if prompt, ok := classifyPrompt(trimmed); ok {
		return Event{Kind: EventAuthPrompt, Prompt: prompt, Message: trimmed}, true
	}

	if reason, ok := classifyError(trimmed); ok {
		return Event{Kind: EventFailure, Reason: reason, Message: trimmed}, true
	}

	return Event{}, false
}

func (p *Parser) progressEvent(line string, match []string) (Event, bool) {
	percent, _ := strconv.ParseFloat(match[2], 64)
	downloaded, _ := strconv.ParseInt(match[3], 10, 64)
	total, _ := strconv.ParseInt(match[4], 10, 64)
	if total > 0 {
		p.lastTotal = total
	} else {
		total = p.lastTotal
	}

	phase := classifyPhase(match[1])
	event := Event{
		Kind:            EventProgress,
		Phase:           phase,
		Percent:         percent,
		BytesDownloaded: downloaded,
		BytesTotal:      total,
		ETASeconds:      parseETA(line),
	}
	event.Overall = p.advanceOverall(phase, percent)
	return event, true
}

// phaseOrder fixes the install stage sequence used to derive the overall
// fraction. Percent regresses at every phase boundary; overall must not.
var phaseOrder = map[Phase]int{
	PhasePreallocating: 0,
	PhaseDownloading:   1,
	PhaseVerifying:     2,
	PhaseCommitting:    3,
}

func (p *Parser) advanceOverall(phase Phase, percent float64) float64 {
	rank, ok := phaseOrder[phase]
	if !ok {
		rank = phaseOrder[PhaseDownloading]
	}
	fraction := (float64(rank) + percent/100) / float64(len(phaseOrder))
	if fraction > 1 {
		fraction = 1
	}
	if fraction > p.lastOverall {
		p.lastOverall = fraction
	}
	return p.lastOverall
}

func classifyPhase(raw string) Phase {
	text := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(text, "verify"):
		return PhaseVerifying
	case strings.Contains(text, "prealloc"):
		return PhasePreallocating
	case strings.Contains(text, "commit"):
		return PhaseCommitting
	default:
		return PhaseDownloading
	}
}

func classifyPrompt(line string) (PromptKind, bool) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "steam guard"), strings.Contains(lower, "two-factor"):
		return PromptGuardCode, true
	case strings.Contains(lower, "password:"), strings.Contains(lower, "cached credentials not found"):
		return PromptPassword, true
	default:
		return "", false
	}
}

func classifyError(line string) (faults.Reason, bool) {
	lower := strings.ToLower(line)
	isError := strings.Contains(line, "ERROR!") ||
		strings.Contains(line, "FAILED") ||
		strings.Contains(lower, "fatal error")
	if !isError {
		return "", false
	}

	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "result code 84"):
		return faults.RateLimited, true
	case strings.Contains(lower, "login failure"), strings.Contains(lower, "invalid password"),
		strings.Contains(lower, "failed login"):
		return faults.LoginFailure, true
	case strings.Contains(lower, "disk space"), strings.Contains(lower, "disk write failure"),
		strings.Contains(lower, "0x202"), strings.Contains(lower, "0x212"):
		return faults.DiskFull, true
	case strings.Contains(lower, "no subscription"), strings.Contains(lower, "invalid appid"),
		strings.Contains(lower, "invalid app id"):
		return faults.InvalidIdentifier, true
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return faults.Timeout, true
	default:
		return faults.UnknownFailure, true
	}
}

// parseETA accepts the vendor's "ETA 1m 30s", "ETA: 00:01:30", and "ETA 45s"
// spellings. Returns 0 when the line carries no estimate.
func parseETA(line string) int64 {
	match := etaPattern.FindStringSubmatch(line)
	if match == nil {
		return 0
	}
	raw := strings.TrimSpace(match[1])

	if strings.Contains(raw, ":") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return 0
		}
		hours, _ := strconv.ParseInt(parts[0], 10, 64)
		minutes, _ := strconv.ParseInt(parts[1], 10, 64)
		seconds, _ := strconv.ParseInt(parts[2], 10, 64)
		return hours*3600 + minutes*60 + seconds
	}

	var total int64
	for _, field := range strings.Fields(raw) {
		unit := field[len(field)-1]
		value, err := strconv.ParseInt(field[:len(field)-1], 10, 64)
		if err != nil {
			continue
		}
		switch unit {
		case 'h':
			total += value * 3600
		case 'm':
			total += value * 60
		case 's':
			total += value
		}
	}
	return total
}
