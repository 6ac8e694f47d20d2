package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DataType enumerates the declared type of an AppSetting value.
type DataType string

const (
	DataTypeString  DataType = "String"
	DataTypeInteger DataType = "Integer"
	DataTypeBoolean DataType = "Boolean"
	DataTypeJSON    DataType = "Json"
)

// AppSetting mirrors the §3 data model entity. Exactly one of Value /
// EncryptedValue is populated when the setting carries a value.
type AppSetting struct {
	Name          string
	Value         *string
	EncryptedValue []byte
	IsEncrypted   bool
	Category      string
	DataType      DataType
	DefaultValue  *string
}

// GetSetting reads one setting by name, transparently decrypting when
// IsEncrypted is set. Returns ErrNotFound if the row does not exist.
func (s *Store) GetSetting(ctx context.Context, name string) (AppSetting, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT name, value, encrypted_value, is_encrypted, category, data_type, default_value
FROM app_settings WHERE name = ?`, name)

	var st AppSetting
	var value, defVal sql.NullString
	var encrypted []byte
	var isEncrypted int
	if err := row.Scan(&st.Name, &value, &encrypted, &isEncrypted, &st.Category, &st.DataType, &defVal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AppSetting{}, ErrNotFound
		}
		return AppSetting{}, fmt.Errorf("metadatastore: get setting %q: %w", name, err)
	}
	st.IsEncrypted = isEncrypted != 0
	if value.Valid {
		st.Value = &value.String
	}
	if defVal.Valid {
		st.DefaultValue = &defVal.String
	}
	st.EncryptedValue = encrypted
	return st, nil
}

// GetSettingValue returns the plaintext value of a setting, decrypting it
// if needed, falling back to DefaultValue when Value/EncryptedValue are both
// absent.
func (s *Store) GetSettingValue(ctx context.Context, name string) (string, error) {
	st, err := s.GetSetting(ctx, name)
	if err != nil {
		return "", err
	}
	if st.IsEncrypted && len(st.EncryptedValue) > 0 {
		if s.cipher == nil {
			return "", errors.New("metadatastore: encrypted setting requested but no passphrase configured")
		}
		plain, err := s.cipher.Decrypt(st.EncryptedValue)
		if err != nil {
			return "", fmt.Errorf("metadatastore: decrypt setting %q: %w", name, err)
		}
		return string(plain), nil
	}
	if st.Value != nil {
		return *st.Value, nil
	}
	if st.DefaultValue != nil {
		return *st.DefaultValue, nil
	}
	return "", nil
}

// SetSetting upserts a plaintext setting value.
func (s *Store) SetSetting(ctx context.Context, name, value, category string, dataType DataType) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_settings (name, value, encrypted_value, is_encrypted, category, data_type)
VALUES (?, ?, NULL, 0, ?, ?)
ON CONFLICT(name) DO UPDATE SET value = excluded.value, encrypted_value = NULL, is_encrypted = 0, category = excluded.category, data_type = excluded.data_type`,
		name, value, category, dataType)
	if err != nil {
		return fmt.Errorf("metadatastore: set setting %q: %w", name, err)
	}
	return nil
}

// SetEncryptedSetting upserts a setting, encrypting value with the store's
// configured cipher. Returns an error if no passphrase was configured at
// Open.
func (s *Store) SetEncryptedSetting(ctx context.Context, name, value, category string, dataType DataType) error {
	if s.cipher == nil {
		return errors.New("metadatastore: cannot store encrypted setting without a configured passphrase")
	}
	ct, err := s.cipher.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("metadatastore: encrypt setting %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO app_settings (name, value, encrypted_value, is_encrypted, category, data_type)
VALUES (?, NULL, ?, 1, ?, ?)
ON CONFLICT(name) DO UPDATE SET value = NULL, encrypted_value = excluded.encrypted_value, is_encrypted = 1, category = excluded.category, data_type = excluded.data_type`,
		name, ct, category, dataType)
	if err != nil {
		return fmt.Errorf("metadatastore: set encrypted setting %q: %w", name, err)
	}
	return nil
}
