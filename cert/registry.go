package cert

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/houzhh15/httpsecurity/logging"
	"gorm.io/gorm"
)

// ErrSignerNotFound 签名者描述不存在
var ErrSignerNotFound = errors.New("signer not found")

// Registry 签名者描述注册表（数据库支持）
type Registry struct {
	db     *gorm.DB
	logger logging.Logger
	mu     sync.RWMutex
}

// SignerRecord 数据库签名者记录
type SignerRecord struct {
	ID                     uint   `gorm:"primaryKey"`
	Name                   string `gorm:"uniqueIndex;not null"`
	Certificate            string `gorm:"type:text;not null"`
	Fingerprint            string `gorm:"index;not null"`
	CommonName             *string
	AuthorityKeyIdentifier []byte
	SubjectKeyIdentifier   []byte
	RootSerial             *string // uint64 以十进制文本保存，避免 sqlite 有符号溢出
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TableName 指定表名
func (SignerRecord) TableName() string {
	return "signer_records"
}

// NewRegistry 创建签名者注册表
func NewRegistry(db *gorm.DB, logger logging.Logger) (*Registry, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	registry := &Registry{
		db:     db,
		logger: logging.OrNop(logger),
	}

	// 自动迁移表结构
	if err := db.AutoMigrate(&SignerRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate signer_records table: %w", err)
	}

	return registry, nil
}

// Register 注册签名者描述，证书无法解码时拒绝
func (r *Registry) Register(sc SigningCertificate) error {
	if sc.Name == "" {
		return errors.New("signer name is required")
	}
	c := DecodePEM([]byte(sc.Certificate))
	if c == nil {
		return fmt.Errorf("signer %s: certificate does not decode", sc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record := SignerRecord{
		Name:                   sc.Name,
		Certificate:            sc.Certificate,
		Fingerprint:            c.Fingerprint(),
		CommonName:             sc.CommonName,
		AuthorityKeyIdentifier: sc.AuthorityKeyIdentifier,
		SubjectKeyIdentifier:   sc.SubjectKeyIdentifier,
	}
	if sc.RootSerial != nil {
		s := strconv.FormatUint(*sc.RootSerial, 10)
		record.RootSerial = &s
	}

	result := r.db.Create(&record)
	if result.Error != nil {
		r.logger.Error("Failed to register signer", "name", sc.Name, "error", result.Error)
		return fmt.Errorf("failed to register signer: %w", result.Error)
	}

	r.logger.Info("Signer registered", "name", sc.Name, "fingerprint", record.Fingerprint)

	return nil
}

// Get 按名称获取签名者描述
func (r *Registry) Get(name string) (*SigningCertificate, error) {
	if name == "" {
		return nil, errors.New("signer name is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var record SignerRecord
	result := r.db.Where("name = ?", name).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSignerNotFound, name)
		}
		return nil, fmt.Errorf("failed to query signer: %w", result.Error)
	}

	return record.toSigningCertificate()
}

// Remove 删除签名者描述
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.db.Where("name = ?", name).Delete(&SignerRecord{})
	if result.Error != nil {
		r.logger.Error("Failed to remove signer", "name", name, "error", result.Error)
		return fmt.Errorf("failed to remove signer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSignerNotFound, name)
	}

	r.logger.Info("Signer removed", "name", name)
	return nil
}

// List 按注册顺序列出签名者摘要
func (r *Registry) List() ([]*Info, error) {
	records, err := r.records()
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0, len(records))
	for _, record := range records {
		c := DecodePEM([]byte(record.Certificate))
		if c == nil {
			continue
		}
		infos = append(infos, c.Info())
	}
	return infos, nil
}

// SigningCertificates 按注册顺序返回全部签名者描述
func (r *Registry) SigningCertificates() ([]SigningCertificate, error) {
	records, err := r.records()
	if err != nil {
		return nil, err
	}

	out := make([]SigningCertificate, 0, len(records))
	for _, record := range records {
		sc, err := record.toSigningCertificate()
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, nil
}

func (r *Registry) records() ([]SignerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []SignerRecord
	if err := r.db.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list signers: %w", err)
	}
	return records, nil
}

func (rec *SignerRecord) toSigningCertificate() (*SigningCertificate, error) {
	sc := &SigningCertificate{
		Name:                   rec.Name,
		Certificate:            rec.Certificate,
		CommonName:             rec.CommonName,
		AuthorityKeyIdentifier: rec.AuthorityKeyIdentifier,
		SubjectKeyIdentifier:   rec.SubjectKeyIdentifier,
	}
	if rec.RootSerial != nil {
		v, err := strconv.ParseUint(*rec.RootSerial, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("signer %s: invalid root serial %q: %w", rec.Name, *rec.RootSerial, err)
		}
		sc.RootSerial = &v
	}
	return sc, nil
}
