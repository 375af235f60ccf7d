package sessioncache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	contextFormatVersionV1 = 1

	maxOrganizations = 4096
)

// Membership is one organization membership inside a cached context.
type Membership struct {
	OrganizationID string
	Role           string
	JoinedAt       time.Time
}

// Context is the composite value returned to callers and cached by token
// hash: the user, their memberships ordered by join time ascending, and the
// resolved active organization. It is derived state, reconstructed from the
// authoritative store on every miss.
type Context struct {
	UserID        string
	Organizations []Membership
	ActiveOrgID   string // empty = no active organization
	ExpiresAt     time.Time
}

// Role returns the caller's role in the active organization, or "" when no
// organization is active.
func (c *Context) Role() string {
	if c == nil || c.ActiveOrgID == "" {
		return ""
	}
	for _, m := range c.Organizations {
		if m.OrganizationID == c.ActiveOrgID {
			return m.Role
		}
	}
	return ""
}

// Encode serializes a Context into the versioned binary wire format.
func Encode(c *Context) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(contextFormatVersionV1)

	if err := writeString(&buf, c.UserID, "userID"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, c.ActiveOrgID, "activeOrgID"); err != nil {
		return nil, err
	}

	if len(c.Organizations) > maxOrganizations {
		return nil, errors.New("too many organizations")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(c.Organizations))); err != nil {
		return nil, err
	}
	for _, m := range c.Organizations {
		if err := writeString(&buf, m.OrganizationID, "organizationID"); err != nil {
			return nil, err
		}
		if err := writeString(&buf, m.Role, "role"); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, m.JoinedAt.UnixNano()); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, c.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses the versioned binary wire format back into a Context.
func Decode(data []byte) (*Context, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != contextFormatVersionV1 {
		return nil, errors.New("invalid context version")
	}

	c := &Context{}

	if c.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if c.ActiveOrgID, err = readString(reader); err != nil {
		return nil, err
	}

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if int(count) > maxOrganizations {
		return nil, errors.New("organization count exceeds limit")
	}
	if count > 0 {
		c.Organizations = make([]Membership, 0, count)
	}
	for i := 0; i < int(count); i++ {
		var m Membership
		if m.OrganizationID, err = readString(reader); err != nil {
			return nil, err
		}
		if m.Role, err = readString(reader); err != nil {
			return nil, err
		}
		var joined int64
		if err := binary.Read(reader, binary.BigEndian, &joined); err != nil {
			return nil, err
		}
		m.JoinedAt = time.Unix(0, joined).UTC()
		c.Organizations = append(c.Organizations, m)
	}

	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	c.ExpiresAt = time.Unix(0, expires).UTC()

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in context blob")
	}

	return c, nil
}

func writeString(buf *bytes.Buffer, s, field string) error {
	if len(s) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", errors.New("truncated context blob")
	}
	return string(b), nil
}
