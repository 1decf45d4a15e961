package course

// ImageState 配图槽位状态。三态契约：
// 未请求 -> 请求在途 -> 已解析（可能是占位图），只进不退。
type ImageState string

const (
	ImageStateNone    ImageState = ""        // 未请求
	ImageStateLoading ImageState = "loading" // 请求在途
	ImageStateDone    ImageState = "done"    // 已解析
)

// Block 幻灯片内容块
type Block struct {
	Type       string     `json:"type"` // text 或 image
	Text       string     `json:"text,omitempty"`
	Keywords   string     `json:"keywords,omitempty"`   // image块的搜索关键词
	ImageURL   *string    `json:"imageUrl"`             // nil=尚未解析出URL
	ImageState ImageState `json:"imageState,omitempty"` // 配图槽位状态
}

// Slide 幻灯片
type Slide struct {
	Title   string  `json:"title"`
	Context string  `json:"context,omitempty"` // 供配图校验用的内容概述
	Blocks  []Block `json:"blocks"`
}

// Module 课程模块
type Module struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Loaded      bool    `json:"loaded"` // 内容是否已生成
	Slides      []Slide `json:"slides,omitempty"`
}

// Course 课程。Store中保存的实例是不可变快照，修改走写时复制。
type Course struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Modules []Module `json:"modules"`
}

// Clone 深拷贝课程，写时复制的基础
func (c *Course) Clone() *Course {
	clone := &Course{
		ID:      c.ID,
		Title:   c.Title,
		Modules: make([]Module, len(c.Modules)),
	}
	for i, module := range c.Modules {
		clone.Modules[i] = cloneModule(module)
	}
	return clone
}

func cloneModule(module Module) Module {
	cloned := module
	cloned.Slides = cloneSlides(module.Slides)
	return cloned
}

func cloneSlides(slides []Slide) []Slide {
	if slides == nil {
		return nil
	}
	cloned := make([]Slide, len(slides))
	for i, slide := range slides {
		cloned[i] = slide
		cloned[i].Blocks = make([]Block, len(slide.Blocks))
		for j, block := range slide.Blocks {
			cloned[i].Blocks[j] = block
			if block.ImageURL != nil {
				url := *block.ImageURL
				cloned[i].Blocks[j].ImageURL = &url
			}
		}
	}
	return cloned
}

// ImageRequest 一个待解析的配图槽位
type ImageRequest struct {
	ModuleIndex  int
	SlideIndex   int
	BlockIndex   int
	Keywords     string
	SlideTitle   string
	SlideContext string
}

// CollectImageRequests 扫出模块中所有未解析的配图槽位
func CollectImageRequests(moduleIndex int, module Module) []ImageRequest {
	var requests []ImageRequest
	for si, slide := range module.Slides {
		for bi, block := range slide.Blocks {
			if block.Type != "image" || block.Keywords == "" {
				continue
			}
			if block.ImageState == ImageStateDone && block.ImageURL != nil {
				continue
			}
			requests = append(requests, ImageRequest{
				ModuleIndex:  moduleIndex,
				SlideIndex:   si,
				BlockIndex:   bi,
				Keywords:     block.Keywords,
				SlideTitle:   slide.Title,
				SlideContext: slide.Context,
			})
		}
	}
	return requests
}
