package vulkan

/** @brief Max number of color attachments of one rendering scope. */
const VULKAN_MAX_COLOR_ATTACHMENTS = 8

/** @brief Color attachments plus the depth/stencil attachment. */
const VULKAN_MAX_ATTACHMENTS = VULKAN_MAX_COLOR_ATTACHMENTS + 1
