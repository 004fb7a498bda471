package data

import (
	"context"
	"encoding/json"
	"errors"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	"credit-service/internal/data/model"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// versionRepo 内容版本数据访问（只追加）
type versionRepo struct {
	data *Data
	log  *log.Helper
}

// NewVersionRepo 创建版本 repo（返回 biz.VersionRepo 接口）
func NewVersionRepo(data *Data, logger log.Logger) biz.VersionRepo {
	if data.mem != nil {
		return data.mem
	}
	return &versionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateVersion 写入新版本
func (r *versionRepo) CreateVersion(ctx context.Context, v *biz.ArtifactVersion) error {
	options, err := json.Marshal(v.Options)
	if err != nil {
		return err
	}
	m := model.ArtifactVersion{
		VersionID:     v.ID,
		RootID:        v.RootID,
		AccountID:     v.AccountID,
		CostTier:      string(v.CostTier),
		Revision:      v.Revision,
		Options:       datatypes.JSON(options),
		Payload:       datatypes.JSON(v.Payload),
		TransactionID: v.TransactionID,
		Description:   truncate(v.Description, constants.MaxDescriptionLength),
		CreatedAt:     v.CreatedAt,
	}
	if v.ParentID != "" {
		parentID := v.ParentID
		m.ParentID = &parentID
	}
	return r.data.db.WithContext(ctx).Create(&m).Error
}

// GetVersion 按ID查询版本
func (r *versionRepo) GetVersion(ctx context.Context, versionID string) (*biz.ArtifactVersion, error) {
	var m model.ArtifactVersion
	if err := r.data.db.WithContext(ctx).Where("version_id = ?", versionID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, creditErrors.ErrVersionNotFound
		}
		return nil, err
	}
	return toVersion(&m)
}

// ListVersions 列出同一棵版本树的所有版本
func (r *versionRepo) ListVersions(ctx context.Context, rootID string) ([]*biz.ArtifactVersion, error) {
	var models []model.ArtifactVersion
	if err := r.data.db.WithContext(ctx).
		Where("root_id = ?", rootID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	versions := make([]*biz.ArtifactVersion, 0, len(models))
	for i := range models {
		v, err := toVersion(&models[i])
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func toVersion(m *model.ArtifactVersion) (*biz.ArtifactVersion, error) {
	v := &biz.ArtifactVersion{
		ID:            m.VersionID,
		RootID:        m.RootID,
		AccountID:     m.AccountID,
		CostTier:      biz.CostTier(m.CostTier),
		Revision:      m.Revision,
		Payload:       json.RawMessage(m.Payload),
		TransactionID: m.TransactionID,
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
	if m.ParentID != nil {
		v.ParentID = *m.ParentID
	}
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &v.Options); err != nil {
			return nil, err
		}
	}
	return v, nil
}
