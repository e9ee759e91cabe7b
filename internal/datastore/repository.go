package datastore

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/logger"
)

// model types accepted for a project
var modelTypes = map[string]bool{"beats": true, "yamnet": true, "others": true}

// ProjectInput describes a project to create. Label, attribute and value ids
// are ignored; one task is created per audio file.
type ProjectInput struct {
	Name       string             `json:"name"`
	ModelType  string             `json:"model_type"`
	Labels     []annotation.Label `json:"labels"`
	AudioFiles []string           `json:"audio_files"`
}

func byID(db *gorm.DB) *gorm.DB { return db.Order("id") }

func withTaxonomy(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Labels", byID).
		Preload("Labels.Attributes", byID).
		Preload("Labels.Attributes.Values", byID)
}

// CreateProject stores a project with its taxonomy and tasks in one transaction
func (s *Store) CreateProject(ctx context.Context, in ProjectInput) (annotation.Project, []annotation.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return annotation.Project{}, nil, validationError("project name is required", "name", in.Name)
	}
	modelType := strings.ToLower(strings.TrimSpace(in.ModelType))
	if modelType == "" {
		modelType = "beats"
	}
	if !modelTypes[modelType] {
		return annotation.Project{}, nil, validationError("unknown model type", "model_type", in.ModelType)
	}

	project := Project{Name: name, ModelType: modelType}
	for _, l := range in.Labels {
		if strings.TrimSpace(l.Name) == "" {
			return annotation.Project{}, nil, validationError("label name is required", "labels", l.Name)
		}
		label := Label{Name: strings.TrimSpace(l.Name)}
		for _, a := range l.Attributes {
			attr := Attribute{Name: strings.TrimSpace(a.Name)}
			for _, v := range a.Values {
				attr.Values = append(attr.Values, AttributeValue{Value: v.Value})
			}
			label.Attributes = append(label.Attributes, attr)
		}
		project.Labels = append(project.Labels, label)
	}
	for _, f := range in.AudioFiles {
		project.Tasks = append(project.Tasks, Task{AudioFile: f, Status: string(annotation.StatusNew)})
	}

	if err := s.DB.WithContext(ctx).Create(&project).Error; err != nil {
		return annotation.Project{}, nil, dbError(err, "create_project", "name", name)
	}

	tasks := make([]annotation.Task, 0, len(project.Tasks))
	for _, t := range project.Tasks {
		tasks = append(tasks, toTask(t))
	}
	s.log.Info("project created",
		logger.Uint64("project_id", uint64(project.ID)),
		logger.Int("labels", len(project.Labels)),
		logger.Int("tasks", len(tasks)))
	return toProject(project), tasks, nil
}

// Projects lists every project with its taxonomy
func (s *Store) Projects(ctx context.Context) ([]annotation.Project, error) {
	var rows []Project
	if err := withTaxonomy(s.DB.WithContext(ctx)).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_projects")
	}
	out := make([]annotation.Project, 0, len(rows))
	for _, p := range rows {
		out = append(out, toProject(p))
	}
	return out, nil
}

// Project returns one project with its taxonomy
func (s *Store) Project(ctx context.Context, id annotation.ID) (annotation.Project, error) {
	var row Project
	if err := withTaxonomy(s.DB.WithContext(ctx)).First(&row, uint(id)).Error; err != nil {
		return annotation.Project{}, lookupError(err, "project", uint(id), "get_project")
	}
	return toProject(row), nil
}

// DeleteProject removes a project with its taxonomy, tasks and annotations.
// Rows are deleted explicitly so the result does not depend on foreign key
// enforcement of the backend.
func (s *Store) DeleteProject(ctx context.Context, id annotation.ID) error {
	pid := uint(id)
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project Project
		if err := tx.First(&project, pid).Error; err != nil {
			return lookupError(err, "project", pid, "delete_project")
		}

		tasks := tx.Model(&Task{}).Select("id").Where("project_id = ?", pid)
		annotations := tx.Model(&Annotation{}).Select("id").Where("task_id IN (?)", tasks)
		labels := tx.Model(&Label{}).Select("id").Where("project_id = ?", pid)
		attributes := tx.Model(&Attribute{}).Select("id").Where("label_id IN (?)", labels)

		steps := []struct {
			name  string
			model any
			query string
			arg   any
		}{
			{"annotation_values", &AnnotationAttributeValue{}, "annotation_id IN (?)", annotations},
			{"annotations", &Annotation{}, "task_id IN (?)", tasks},
			{"tasks", &Task{}, "project_id = ?", pid},
			{"attribute_values", &AttributeValue{}, "attribute_id IN (?)", attributes},
			{"attributes", &Attribute{}, "label_id IN (?)", labels},
			{"labels", &Label{}, "project_id = ?", pid},
		}
		for _, step := range steps {
			if err := tx.Where(step.query, step.arg).Delete(step.model).Error; err != nil {
				return dbError(err, "delete_project_"+step.name, "project_id", pid)
			}
		}
		if err := tx.Delete(&project).Error; err != nil {
			return dbError(err, "delete_project", "project_id", pid)
		}
		s.log.Info("project deleted", logger.Uint64("project_id", uint64(pid)))
		return nil
	})
}

// ProjectLabels returns the label taxonomy of a project
func (s *Store) ProjectLabels(ctx context.Context, projectID annotation.ID) ([]annotation.Label, error) {
	var rows []Label
	err := s.DB.WithContext(ctx).
		Preload("Attributes", byID).
		Preload("Attributes.Values", byID).
		Where("project_id = ?", uint(projectID)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "project_labels", "project_id", int64(projectID))
	}
	return toLabels(rows), nil
}

// Task returns task metadata. AudioURL is left empty.
func (s *Store) Task(ctx context.Context, id annotation.ID) (annotation.Task, error) {
	var row Task
	if err := s.DB.WithContext(ctx).First(&row, uint(id)).Error; err != nil {
		return annotation.Task{}, lookupError(err, "task", uint(id), "get_task")
	}
	return toTask(row), nil
}

// Tasks lists tasks, filtered by status when status is not empty
func (s *Store) Tasks(ctx context.Context, status annotation.Status) ([]annotation.Task, error) {
	q := s.DB.WithContext(ctx).Order("id")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []Task
	if err := q.Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_tasks", "status", string(status))
	}
	out := make([]annotation.Task, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTask(t))
	}
	return out, nil
}

// TaskAnnotations returns the stored annotations of a task and its project labels
func (s *Store) TaskAnnotations(ctx context.Context, id annotation.ID) (annotation.TaskAnnotations, error) {
	task, err := s.Task(ctx, id)
	if err != nil {
		return annotation.TaskAnnotations{}, err
	}
	annotations, err := s.Annotations(ctx, id)
	if err != nil {
		return annotation.TaskAnnotations{}, err
	}
	labels, err := s.ProjectLabels(ctx, task.ProjectID)
	if err != nil {
		return annotation.TaskAnnotations{}, err
	}
	return annotation.TaskAnnotations{Annotations: annotations, Labels: labels}, nil
}

// Annotations returns the stored annotations of a task ordered by start time.
// An unknown task yields an empty list.
func (s *Store) Annotations(ctx context.Context, taskID annotation.ID) ([]annotation.Persisted, error) {
	var rows []Annotation
	err := s.DB.WithContext(ctx).
		Preload("AttributeValues", byID).
		Where("task_id = ?", uint(taskID)).
		Order("start_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "task_annotations", "task_id", int64(taskID))
	}
	out := make([]annotation.Persisted, 0, len(rows))
	for _, a := range rows {
		out = append(out, toPersisted(a))
	}
	return out, nil
}

// SaveAnnotations replaces every annotation of a task and sets its status.
// An empty status means In Progress.
func (s *Store) SaveAnnotations(ctx context.Context, id annotation.ID, req annotation.SaveRequest) error {
	status := req.Status
	if status == "" {
		status = annotation.StatusInProgress
	}
	if !status.Valid() {
		return validationError("unknown task status", "status", req.Status)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task Task
		if err := tx.First(&task, uint(id)).Error; err != nil {
			return lookupError(err, "task", uint(id), "save_annotations")
		}

		rows, err := s.buildAnnotations(tx, task, req.Annotations)
		if err != nil {
			return err
		}

		if err := deleteTaskAnnotations(tx, task.ID); err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return dbError(err, "insert_annotations", "task_id", task.ID)
			}
		}
		if err := tx.Model(&task).Update("status", string(status)).Error; err != nil {
			return dbError(err, "update_task_status", "task_id", task.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("annotations saved",
		logger.Int64("task_id", int64(id)),
		logger.Int("count", len(req.Annotations)),
		logger.String("status", string(status)))
	return nil
}

// AppendAnnotations adds records to a task without touching existing ones
func (s *Store) AppendAnnotations(ctx context.Context, id annotation.ID, records []annotation.Record) (int, error) {
	var created int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task Task
		if err := tx.First(&task, uint(id)).Error; err != nil {
			return lookupError(err, "task", uint(id), "append_annotations")
		}
		rows, err := s.buildAnnotations(tx, task, records)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return dbError(err, "insert_annotations", "task_id", task.ID)
		}
		created = len(rows)
		return nil
	})
	return created, err
}

// DeleteAnnotation removes one annotation with its attribute values
func (s *Store) DeleteAnnotation(ctx context.Context, id annotation.ID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("annotation_id = ?", uint(id)).Delete(&AnnotationAttributeValue{}).Error; err != nil {
			return dbError(err, "delete_annotation_values", "annotation_id", int64(id))
		}
		res := tx.Delete(&Annotation{}, uint(id))
		if res.Error != nil {
			return dbError(res.Error, "delete_annotation", "annotation_id", int64(id))
		}
		if res.RowsAffected == 0 {
			return notFound("annotation", uint(id))
		}
		return nil
	})
}

func deleteTaskAnnotations(tx *gorm.DB, taskID uint) error {
	sub := tx.Model(&Annotation{}).Select("id").Where("task_id = ?", taskID)
	if err := tx.Where("annotation_id IN (?)", sub).Delete(&AnnotationAttributeValue{}).Error; err != nil {
		return dbError(err, "delete_annotation_values", "task_id", taskID)
	}
	if err := tx.Where("task_id = ?", taskID).Delete(&Annotation{}).Error; err != nil {
		return dbError(err, "delete_annotations", "task_id", taskID)
	}
	return nil
}

// buildAnnotations validates records against the project taxonomy
func (s *Store) buildAnnotations(tx *gorm.DB, task Task, records []annotation.Record) ([]Annotation, error) {
	var labels []Label
	err := tx.Preload("Attributes.Values").Where("project_id = ?", task.ProjectID).Find(&labels).Error
	if err != nil {
		return nil, dbError(err, "load_taxonomy", "project_id", task.ProjectID)
	}
	tax := newTaxonomyIndex(labels)

	rows := make([]Annotation, 0, len(records))
	for i, r := range records {
		if r.StartTime < 0 || r.EndTime <= r.StartTime {
			return nil, validationError("annotation bounds are invalid", "annotations", i)
		}
		row := Annotation{TaskID: task.ID, StartTime: r.StartTime, EndTime: r.EndTime}
		if ml := strings.TrimSpace(r.ModelLabel); ml != "" {
			row.ModelLabel = &ml
			row.ModelGenerated = r.IsModelGenerated
		}

		if r.LabelID.Valid() {
			labelID := uint(r.LabelID)
			if !tax.hasLabel(labelID) {
				return nil, validationError("label does not belong to the task project", "label_id", r.LabelID)
			}
			row.LabelID = &labelID
		} else if row.ModelLabel == nil {
			return nil, validationError("annotation has neither a label nor a model label", "annotations", i)
		}

		for _, av := range r.Attributes {
			if row.LabelID == nil || !tax.valid(*row.LabelID, uint(av.AttributeID), uint(av.ValueID)) {
				return nil, validationError("attribute value does not belong to the label", "attributes", av.AttributeID)
			}
			row.AttributeValues = append(row.AttributeValues, AnnotationAttributeValue{
				AttributeID: uint(av.AttributeID),
				ValueID:     uint(av.ValueID),
			})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// taxonomyIndex answers membership questions about one project's labels
type taxonomyIndex struct {
	labels map[uint]map[uint]map[uint]bool
}

func newTaxonomyIndex(labels []Label) taxonomyIndex {
	idx := taxonomyIndex{labels: make(map[uint]map[uint]map[uint]bool, len(labels))}
	for _, l := range labels {
		attrs := make(map[uint]map[uint]bool, len(l.Attributes))
		for _, a := range l.Attributes {
			values := make(map[uint]bool, len(a.Values))
			for _, v := range a.Values {
				values[v.ID] = true
			}
			attrs[a.ID] = values
		}
		idx.labels[l.ID] = attrs
	}
	return idx
}

func (t taxonomyIndex) hasLabel(id uint) bool {
	_, ok := t.labels[id]
	return ok
}

func (t taxonomyIndex) valid(labelID, attributeID, valueID uint) bool {
	return t.labels[labelID][attributeID][valueID]
}
