package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
)

const (
	licelTimeLayout    = "02/01/2006 15:04:05"
	maxHeaderLineBytes = 1024
	maxDatasets        = 256
	channelFieldCount  = 16
	customFieldKey     = "custom_field"
)

// licelHeader is the text header at the top of every Licel file.
type licelHeader struct {
	fileName    string
	site        string
	start       time.Time
	end         time.Time
	lasers      int
	datasets    int
	customField string
	channels    []models.ChannelInfo
}

func (h *licelHeader) fileInfo() *models.FileInfo {
	info := &models.FileInfo{
		Start:    h.start,
		End:      h.end,
		Location: h.site,
		Channels: h.channels,
	}
	if h.lasers == 3 {
		info.Extra = map[string]string{customFieldKey: h.customField}
	}
	return info
}

// readLicelHeader parses the header lines of a Licel file. The binary
// payload that follows is never read.
func readLicelHeader(path string) (*licelHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := bufio.NewReaderSize(file, maxHeaderLineBytes)

	name, err := readHeaderLine(r)
	if err != nil {
		return nil, fmt.Errorf("reading file name line: %w", err)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name line", ErrUnrecognized)
	}

	h := &licelHeader{fileName: name}

	line, err := readHeaderLine(r)
	if err != nil {
		return nil, fmt.Errorf("reading location line: %w", err)
	}
	if err := h.parseLocationLine(line); err != nil {
		return nil, err
	}

	line, err = readHeaderLine(r)
	if err != nil {
		return nil, fmt.Errorf("reading laser line: %w", err)
	}
	if err := h.parseLaserLine(line); err != nil {
		return nil, err
	}

	h.channels = make([]models.ChannelInfo, 0, h.datasets)
	for i := 0; i < h.datasets; i++ {
		line, err = readHeaderLine(r)
		if err != nil {
			return nil, fmt.Errorf("reading dataset %d: %w", i+1, err)
		}
		ch, err := parseChannelLine(line)
		if err != nil {
			return nil, fmt.Errorf("dataset %d: %w", i+1, err)
		}
		h.channels = append(h.channels, ch)
	}

	return h, nil
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return "", fmt.Errorf("%w: header line too long", ErrUnrecognized)
	}
	if err != nil && !(err == io.EOF && len(line) > 0) {
		if err == io.EOF {
			return "", fmt.Errorf("%w: truncated header", ErrUnrecognized)
		}
		return "", err
	}
	for _, b := range line {
		if b != '\t' && b != '\r' && b != '\n' && (b < 0x20 || b > 0x7e) {
			return "", fmt.Errorf("%w: binary data in header", ErrUnrecognized)
		}
	}
	return strings.TrimSpace(string(line)), nil
}

func (h *licelHeader) parseLocationLine(line string) error {
	if idx := strings.IndexByte(line, '"'); idx >= 0 {
		rest := line[idx+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return fmt.Errorf("%w: unterminated custom field", ErrUnrecognized)
		}
		h.customField = strings.TrimSpace(rest[:end])
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) < 9 {
		return fmt.Errorf("%w: location line has %d fields", ErrUnrecognized, len(fields))
	}

	start, err := time.Parse(licelTimeLayout, fields[1]+" "+fields[2])
	if err != nil {
		return fmt.Errorf("%w: start time: %v", ErrUnrecognized, err)
	}
	end, err := time.Parse(licelTimeLayout, fields[3]+" "+fields[4])
	if err != nil {
		return fmt.Errorf("%w: end time: %v", ErrUnrecognized, err)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end time %s before start time %s", ErrUnrecognized, end, start)
	}
	for _, f := range fields[5:9] {
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return fmt.Errorf("%w: position field %q", ErrUnrecognized, f)
		}
	}

	h.site = fields[0]
	h.start = start
	h.end = end
	return nil
}

func (h *licelHeader) parseLaserLine(line string) error {
	fields := strings.Fields(line)
	switch len(fields) {
	case 5:
		h.lasers = 2
	case 7:
		h.lasers = 3
	default:
		return fmt.Errorf("%w: laser line has %d fields", ErrUnrecognized, len(fields))
	}

	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("%w: laser field %q", ErrUnrecognized, f)
		}
		values[i] = v
	}

	h.datasets = values[4]
	if h.datasets < 1 || h.datasets > maxDatasets {
		return fmt.Errorf("%w: %d datasets", ErrUnrecognized, h.datasets)
	}
	return nil
}

func parseChannelLine(line string) (models.ChannelInfo, error) {
	fields := strings.Fields(line)
	if len(fields) != channelFieldCount {
		return models.ChannelInfo{}, fmt.Errorf("%w: channel line has %d fields", ErrUnrecognized, len(fields))
	}

	ints := make(map[int]int)
	for _, idx := range []int{0, 1, 2, 3, 5, 12, 13} {
		v, err := strconv.Atoi(fields[idx])
		if err != nil {
			return models.ChannelInfo{}, fmt.Errorf("%w: channel field %d %q", ErrUnrecognized, idx+1, fields[idx])
		}
		ints[idx] = v
	}

	binWidth, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return models.ChannelInfo{}, fmt.Errorf("%w: bin width %q", ErrUnrecognized, fields[6])
	}

	wavelength, err := strconv.Atoi(strings.SplitN(fields[7], ".", 2)[0])
	if err != nil {
		return models.ChannelInfo{}, fmt.Errorf("%w: wavelength %q", ErrUnrecognized, fields[7])
	}

	return models.ChannelInfo{
		Name:       fields[15],
		Resolution: binWidth,
		Wavelength: wavelength,
		LaserUsed:  ints[2],
		ADCBits:    ints[12],
		Analog:     ints[1] == 0,
		Active:     ints[0] == 1,
		Shots:      ints[13],
	}, nil
}

// LicelV1Reader reads Licel files with the two-laser header.
type LicelV1Reader struct{}

func NewLicelV1Reader() *LicelV1Reader {
	return &LicelV1Reader{}
}

func (r *LicelV1Reader) Name() string          { return "licel" }
func (r *LicelV1Reader) Type() models.FileType { return models.FileTypeLicelV1 }

func (r *LicelV1Reader) ReadInfo(path string) (*models.FileInfo, error) {
	h, err := readLicelHeader(path)
	if err != nil {
		return nil, err
	}
	if h.lasers != 2 {
		return nil, fmt.Errorf("%w: not a v1 header", ErrUnrecognized)
	}
	return h.fileInfo(), nil
}

// HasIdentifier matches the site tag only.
func (r *LicelV1Reader) HasIdentifier(info *models.FileInfo, identifier string) bool {
	return info != nil && info.Location == identifier
}

func (r *LicelV1Reader) HasIdentifierInList(info *models.FileInfo, identifiers []string) bool {
	return info != nil && contains(identifiers, info.Location)
}

// LicelV2Reader reads Licel files with the three-laser header and the
// optional custom field.
type LicelV2Reader struct{}

func NewLicelV2Reader() *LicelV2Reader {
	return &LicelV2Reader{}
}

func (r *LicelV2Reader) Name() string          { return "licel_v2" }
func (r *LicelV2Reader) Type() models.FileType { return models.FileTypeLicelV2 }

func (r *LicelV2Reader) ReadInfo(path string) (*models.FileInfo, error) {
	h, err := readLicelHeader(path)
	if err != nil {
		return nil, err
	}
	if h.lasers != 3 {
		return nil, fmt.Errorf("%w: not a v2 header", ErrUnrecognized)
	}
	return h.fileInfo(), nil
}

// HasIdentifier matches the site tag or the custom field.
func (r *LicelV2Reader) HasIdentifier(info *models.FileInfo, identifier string) bool {
	if info == nil {
		return false
	}
	return info.Location == identifier || info.Extra[customFieldKey] == identifier
}

func (r *LicelV2Reader) HasIdentifierInList(info *models.FileInfo, identifiers []string) bool {
	if info == nil {
		return false
	}
	return contains(identifiers, info.Location) || contains(identifiers, info.Extra[customFieldKey])
}
